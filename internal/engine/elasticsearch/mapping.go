package elasticsearch

// DefaultIndexName is the alias searches are served from. Concrete indices
// are named "<alias>_<unix nanos>".
const DefaultIndexName = "storefront_products"

// buildIndexMapping returns the settings and mapping for a products index.
// Text fields are folded like the query normalizer (lowercase, accents
// stripped). Facet fields keep their raw value in ".keyword" for
// aggregations and a folded copy in ".norm" for filtering and scoring.
// The folding normalizer also trims and collapses whitespace runs, so
// name.sort, description.fold and the ".norm" fields hold exactly what
// relevance.Normalize produces. Numeric ids are also indexed as id.num for
// the tie-break sort.
func buildIndexMapping() string {
	return `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "analyzer": {
        "folding": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "asciifolding"]
        },
        "autocomplete_analyzer": {
          "type": "custom",
          "tokenizer": "autocomplete_tokenizer",
          "filter": ["lowercase", "asciifolding"]
        }
      },
      "tokenizer": {
        "autocomplete_tokenizer": {
          "type": "edge_ngram",
          "min_gram": 2,
          "max_gram": 20,
          "token_chars": ["letter", "digit"]
        }
      },
      "char_filter": {
        "collapse_whitespace": {
          "type": "pattern_replace",
          "pattern": "\\s+",
          "replacement": " "
        }
      },
      "normalizer": {
        "folding": {
          "type": "custom",
          "char_filter": ["collapse_whitespace"],
          "filter": ["lowercase", "asciifolding", "trim"]
        }
      }
    }
  },
  "mappings": {
    "properties": {
      "id":                { "type": "keyword", "fields": { "num": { "type": "long", "ignore_malformed": true } } },
      "name":              { "type": "text", "analyzer": "folding", "fields": { "sort": { "type": "keyword", "normalizer": "folding", "ignore_above": 256 }, "autocomplete": { "type": "text", "analyzer": "autocomplete_analyzer", "search_analyzer": "folding" } } },
      "slug":              { "type": "keyword" },
      "platform":          { "type": "text", "analyzer": "folding", "fields": { "keyword": { "type": "keyword" }, "norm": { "type": "keyword", "normalizer": "folding" } } },
      "price":             { "type": "scaled_float", "scaling_factor": 100 },
      "salePrice":         { "type": "scaled_float", "scaling_factor": 100 },
      "finalPrice":        { "type": "scaled_float", "scaling_factor": 100 },
      "genres":            { "type": "text", "analyzer": "folding", "fields": { "keyword": { "type": "keyword" }, "norm": { "type": "keyword", "normalizer": "folding" } } },
      "description":       { "type": "text", "analyzer": "folding", "fields": { "fold": { "type": "keyword", "normalizer": "folding", "ignore_above": 8191 } } },
      "coverImageUrl":     { "type": "keyword", "index": false },
      "coverThumbnailUrl": { "type": "keyword", "index": false },
      "type":              { "type": "keyword", "fields": { "norm": { "type": "keyword", "normalizer": "folding" } } },
      "ageRating":         { "type": "keyword", "fields": { "norm": { "type": "keyword", "normalizer": "folding" } } },
      "releaseDate":       { "type": "keyword" },
      "createdAt":         { "type": "long" }
    }
  }
}`
}
