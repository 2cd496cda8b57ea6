// Package serializer converts common.Message values to bytes and back for the
// RPC transports.
//
// Implementations:
//
//   - jsonFormat: plain JSON, human readable and easy to debug with curl.
//
//   - snappyFormat: JSON compressed with snappy. Record batches sent with
//     SetMulti shrink considerably, so this is the default for the CLI.
//
//   - gobFormat: Go's gob encoding. Kept for Go-only deployments.
//
// All serializers are stateless and safe for concurrent use.
//
// Usage:
//
//	s, err := serializer.ByName("snappy")
//	data, err := s.Serialize(message)
//	// ... send data ...
//	var receivedMsg common.Message
//	err = s.Deserialize(receivedData, &receivedMsg)
package serializer
