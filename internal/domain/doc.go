// Package domain models weather-station telemetry pushed in the
// Meteobridge / Meteotemplate format.
//
// # Wire Format
//
// Stations push a flat set of key/value pairs, usually as query parameters:
//
//	GET /api/v1/ingest?T=21,5&H=64&P=1013.2&W=10&G=15&S=270&U=1718000000&PASS=secret
//
// Keys are short field codes. They are case-folded to uppercase before any
// matching. Values are decimal numbers or short strings; some stations emit a
// decimal comma ("21,5"), which is rewritten to "21.5" on ingest.
//
// # Field Vocabulary
//
// A payload is filtered down to a closed vocabulary: a fixed set of exact codes
// (see [exactFields]) plus numbered sensor families such as T1, TS2, TSD3,
// CO2_1, PP4 and battery flags like TBAT. Anything else is dropped silently;
// partial payloads are the norm, not an error.
//
// Special fields:
//
//	PASS  shared secret; checked by the ingest gate and never stored
//	U     station epoch seconds; defaulted to server time when absent or invalid
//	SW    station identifier; truncated to 64 characters
//	S     wind direction in degrees; formatted, never unit-converted
//
// # Lifecycle
//
// A [Reading] is created once per accepted push and never mutated. Readings are
// removed only by retention pruning.
package domain
