package observer

import "go.opentelemetry.io/otel/attribute"

// Attribute keys for ingestion and retrieval spans and metrics.
var (
	AttrDocumentCategory = attribute.Key("document.category")
	AttrDocumentSource   = attribute.Key("document.source")
	AttrFragmentCount    = attribute.Key("fragment.count")

	AttrEmbedModel     = attribute.Key("embedding.model")
	AttrEmbedTextCount = attribute.Key("embedding.text_count")

	AttrSearchMode  = attribute.Key("search.mode")
	AttrSearchTopK  = attribute.Key("search.top_k")
	AttrSearchAlpha = attribute.Key("search.alpha")
	AttrResultCount = attribute.Key("search.result_count")
)
