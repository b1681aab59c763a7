package dto

// TagListResponse is the body of GET /v2/{name}/tags/list.
type TagListResponse struct {
	Name string   `json:"name"`
	Tags []string `json:"tags"`
}

// CatalogResponse is the body of GET /v2/_catalog.
type CatalogResponse struct {
	Repositories []string `json:"repositories"`
}
