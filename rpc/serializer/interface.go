package serializer

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ValentinKolb/dStats/rpc/common"
)

// IRPCSerializer is the interface for all Message Serializers
type IRPCSerializer interface {
	// Serialize serializes a Message into a byte array
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize decodes b into msg
	Deserialize(b []byte, msg *common.Message) error
}

// registry maps the names accepted by ByName to their factories
var registry = map[string]func() IRPCSerializer{
	"json":   NewJSONSerializer,
	"gob":    NewGOBSerializer,
	"snappy": NewSnappySerializer,
}

// ByName returns the serializer registered under name (see Names).
func ByName(name string) (IRPCSerializer, error) {
	factory, ok := registry[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("invalid serializer %q (one of %s)", name, strings.Join(Names(), ", "))
	}
	return factory(), nil
}

// Names lists the registered serializer names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
