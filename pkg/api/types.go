package api

// Folder is one message folder. Newer API responses use folderId and
// folderName; older ones use id and name. Accessors paper over the
// difference.
type Folder struct {
	FolderID   int    `json:"folderId"`
	LegacyID   int    `json:"id"`
	FolderName string `json:"folderName"`
	LegacyName string `json:"name"`
	FolderType string `json:"folderType"`

	UnreadMessageCount int `json:"unreadMessageCount"`
	TotalMessageCount  int `json:"totalMessageCount"`
}

// ID returns the folder's identifier regardless of response vintage.
func (f *Folder) ID() int {
	if f.FolderID != 0 {
		return f.FolderID
	}
	return f.LegacyID
}

// Name returns the folder's display name regardless of response vintage.
func (f *Folder) Name() string {
	if f.FolderName != "" {
		return f.FolderName
	}
	return f.LegacyName
}

// FolderList is the folders endpoint response.
type FolderList struct {
	SystemFolders []Folder `json:"systemFolders"`
	UserFolders   []Folder `json:"userFolders"`
}

// All returns system folders followed by user folders.
func (l *FolderList) All() []Folder {
	all := make([]Folder, 0, len(l.SystemFolders)+len(l.UserFolders))
	all = append(all, l.SystemFolders...)
	all = append(all, l.UserFolders...)
	return all
}

// Inbox finds the INBOX system folder, or nil.
func (l *FolderList) Inbox() *Folder {
	for i := range l.SystemFolders {
		if l.SystemFolders[i].FolderType == "INBOX" {
			return &l.SystemFolders[i]
		}
	}
	return nil
}

// Person is a message participant.
type Person struct {
	Name string `json:"name"`
}

// Attachment is a file listed on a message. Bodies are not downloaded.
type Attachment struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Message is one entry in a message listing.
type Message struct {
	ID       int64        `json:"id"`
	Author   Person       `json:"author"`
	Subject  string       `json:"subject"`
	Preview  string       `json:"preview"`
	SentDate string       `json:"sentDate"`
	Read     bool         `json:"read"`
	Replied  bool         `json:"replied"`
	Files    []Attachment `json:"files"`
}

// PageMetadata describes a page of a listing.
type PageMetadata struct {
	Page  int  `json:"page"`
	First bool `json:"first"`
	Last  bool `json:"last"`
}

// MessagePage is one page of the messages endpoint response.
type MessagePage struct {
	Metadata PageMetadata `json:"metadata"`
	Data     []Message    `json:"data"`
}

// MessageDetail is a single message with its body.
type MessageDetail struct {
	ID         int64        `json:"id"`
	Author     Person       `json:"author"`
	Recipients []Person     `json:"recipients"`
	Subject    string       `json:"subject"`
	Body       string       `json:"message"`
	SentDate   string       `json:"sentDate"`
	Read       bool         `json:"read"`
	Files      []Attachment `json:"files"`
}
