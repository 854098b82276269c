// Package labels renders the printable code artifacts for an asset identifier.
//
// Each call produces two PNGs: a QR code and a Code-128 barcode, both encoding
// the raw identifier. Each image is framed with a header band (owner name,
// uppercased) and a footer band (generation month, e.g. "MARCH 2025").
//
// Text is drawn by a TextRenderer chosen once at startup: a scalable
// TrueType/OpenType font when one is available, otherwise the built-in 7x13
// bitmap face. If labeling fails for any reason the unlabeled code image is
// stored instead and the result is flagged Degraded; the scannable payload is
// never lost to a text rendering problem.
package labels
