// Package mem provides whole-region operations over a PSRAM controller:
// chunked reads and writes, fill, overlapping copy, CRC-8 checksums and a
// concurrent pattern test.
//
// The controller executes one bounded transaction per call and never splits
// a request. The functions here split requests into [Chunk]-byte transfers
// and check the whole region against the device size before issuing any of
// them. A failure part way through leaves the earlier chunks applied.
package mem
