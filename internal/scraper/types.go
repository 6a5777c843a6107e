package scraper

// Candidate is one title scraped from the torrent listing.
type Candidate struct {
	RawTitle  string
	SourceURL string
}
