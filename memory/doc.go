// Package memory contains concrete implementations of core.MemoryService,
// the long-term recall layer that spans sessions. Sessions are ingested
// wholesale and queried by text; the in-memory implementation uses simple
// word matching while production deployments would plug in a vector store or
// search index behind the same interface.
package memory
