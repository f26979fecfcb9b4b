package responses

// Update - information about an update
type Update struct {
	// did it work or not
	Success bool `json:"success"`
	// this is for humans
	ErrorMessage string `json:"errorMessage"`
	Stats        Stats  `json:"stats"`
}

type Stats struct {
	NumberOfNamespaces int `json:"numberOfNamespaces"`
	NumberOfRestores   int `json:"numberOfRestores"`
	NumberOfSnapshots  int `json:"numberOfSnapshots"`
	// seconds
	RepoRuntime float64 `json:"repoRuntime"`
	// seconds
	OwnRuntime float64 `json:"ownRuntime"`
}
