package model

import "time"

// ShortLink maps a six character code to compact poll-template state.
// Every resolve bumps LastAccess and AccessCount and slides the expiry.
type ShortLink struct {
    Code        string    `json:"code"`
    Original    string    `json:"original"`
    Created     time.Time `json:"created"`
    LastAccess  time.Time `json:"lastAccess"`
    AccessCount int64     `json:"accessCount"`
}

// TemplateParams is the decoded form of ShortLink.Original.  Field names are
// kept short because the encoded form travels inside URLs.
type TemplateParams struct {
    Title        string   `json:"t,omitempty"`
    Participants []string `json:"p,omitempty"`
    DateTemplate string   `json:"d,omitempty"`
    Months       int      `json:"m,omitempty"`
}
