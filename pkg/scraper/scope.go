package scraper

// Scope selects which purchases a run covers
type Scope struct {
	// Creator restricts the run to one creator's purchases when non-empty
	Creator string
	// Products holds explicit product identifiers or detail URLs; when
	// non-empty the library is not enumerated at all
	Products []string
}

// AllLibrary covers every purchase in the library
func AllLibrary() Scope {
	return Scope{}
}

// ForCreator covers one creator's purchases
func ForCreator(handle string) Scope {
	return Scope{Creator: handle}
}

// ForProducts covers explicitly named products, bypassing enumeration
func ForProducts(idsOrURLs ...string) Scope {
	return Scope{Products: idsOrURLs}
}
