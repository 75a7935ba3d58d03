package cache

import "strings"

// Key namespaces. The <namespace>:<id>:<secondary-id> layout is load-bearing:
// wildcard invalidation (e.g. after a document signature) relies on it.
const (
	nsDocumentos = "proxy:documentos"
	nsAndamentos = "proxy:andamentos"
	nsUnidades   = "proxy:unidades"
)

// DocumentsKey is the cache key for a process's document listing in a unit.
func DocumentsKey(numeroProcesso, idUnidade string) string {
	return nsDocumentos + ":" + numeroProcesso + ":" + idUnidade
}

// ProgressKey is the cache key for a process's progress events in a unit.
func ProgressKey(numeroProcesso, idUnidade string) string {
	return nsAndamentos + ":" + numeroProcesso + ":" + idUnidade
}

// OpenUnitsKey is the cache key for a process's open-units lookup.
func OpenUnitsKey(numeroProcesso, idUnidade string) string {
	return nsUnidades + ":" + numeroProcesso + ":" + idUnidade
}

// ProcessPatterns returns the wildcard patterns covering every proxy entry
// for one process, across all units.
func ProcessPatterns(numeroProcesso string) []string {
	return []string{
		nsAndamentos + ":" + numeroProcesso + ":*",
		nsUnidades + ":" + numeroProcesso + ":*",
		nsDocumentos + ":" + numeroProcesso + ":*",
	}
}

// UnitDocumentsPattern matches every cached document listing for a unit,
// regardless of process. Used when a signature invalidates derived listings.
func UnitDocumentsPattern(idUnidade string) string {
	return nsDocumentos + ":*:" + idUnidade
}

// UnderstandingKey is the cache key for a process-understanding summary,
// pinned to the first and last document so any boundary change misses.
func UnderstandingKey(numeroProcesso, primeiroDoc, ultimoDoc string) string {
	return "processo:" + numeroProcesso + ":primeiro:" + primeiroDoc + ":ultimo:" + ultimoDoc
}

// DocumentSummaryKey is the cache key for a single document summary.
func DocumentSummaryKey(documentoFormatado string) string {
	return "documento:" + documentoFormatado
}

// MatchPattern reports whether key matches a glob pattern where '*' matches
// any run of characters (including none). This is the only wildcard the key
// scheme needs.
func MatchPattern(pattern, key string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return key == pattern
	}

	if !strings.HasPrefix(key, parts[0]) {
		return false
	}
	key = key[len(parts[0]):]

	last := parts[len(parts)-1]
	if !strings.HasSuffix(key, last) {
		return false
	}
	key = key[:len(key)-len(last)]

	for _, part := range parts[1 : len(parts)-1] {
		if part == "" {
			continue
		}
		index := strings.Index(key, part)
		if index < 0 {
			return false
		}
		key = key[index+len(part):]
	}
	return true
}
