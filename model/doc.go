// Package model defines the provider-agnostic contract for language model
// access: a Request/Response pair that carries role-tagged content and tool
// declarations, and a Model interface whose Generate call serves both batch
// and streamed turns through the same response channel.
//
// Providers (OpenAI, Anthropic) implement Model in their sub-packages, so
// agents and flows never touch a vendor SDK directly. MockModel scripts
// responses for tests. Rate limiting wraps any Model via the middleware
// sub-package.
package model
