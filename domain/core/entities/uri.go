package entities

import (
	"strings"
)

// namespaces maps each kind to its URI prefix
var namespaces = map[Kind]string{
	KindTopic:      "тема:",
	KindItemsRange: "ии:пункты:",
	KindRecord:     "запись:",
}

// GenerateURI builds the canonical URI for an entity of the given kind.
// The mapping is deterministic: equal (kind, key) pairs always yield the same URI.
func GenerateURI(kind Kind, key string) string {
	return namespaces[kind] + key
}

// TopicURI returns the URI of the topic with the given name
func TopicURI(name string) string {
	return GenerateURI(KindTopic, name)
}

// ItemsRangeURI returns the URI of the range spanning from..to
func ItemsRangeURI(from, to string) string {
	return GenerateURI(KindItemsRange, from+"-"+to)
}

// RecordURI returns the URI of the record with the given code
func RecordURI(code string) string {
	return GenerateURI(KindRecord, code)
}

// KindOfURI resolves the entity kind from a URI namespace
func KindOfURI(uri string) (Kind, bool) {
	var (
		best    Kind
		bestLen int
	)
	// longest prefix wins so nested namespaces stay unambiguous
	for kind, ns := range namespaces {
		if strings.HasPrefix(uri, ns) && len(ns) > bestLen {
			best, bestLen = kind, len(ns)
		}
	}
	return best, bestLen > 0
}
