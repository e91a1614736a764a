package common

// Shared constants to enforce DRY and avoid magic strings/numbers.

// HTTP headers and content types
const (
	HeaderAPIKey       = "X-API-Key" // #nosec G101 - header name constant, not a credential
	HeaderPrefer       = "Prefer"
	PreferRespondAsync = "respond-async"
	ContentTypeJSON    = "application/json"
	ContentTypeMP3     = "audio/mpeg"
	ContentTypeRSS     = "application/rss+xml; charset=utf-8"
)

// API paths
const (
	PathHealthz  = "/healthz"
	PathGenerate = "/api/podcast/generate"
	PathProcess  = "/api/podcast/process"
	PathStatus   = "/api/podcast/status"
	PathEpisodes = "/api/podcast/episodes"
	PathFeed     = "/api/podcast/feed"
)

// Defaults and limits
const (
	DefaultQueueCapacity = 128
	DefaultWorkerCount   = 2
	SQLiteBusyTimeoutMS  = 5000
	MinContentLength     = 50
)

// MIME types accepted for source text uploads
const (
	MimeTextPlain    = "text/plain"
	MimeTextMarkdown = "text/markdown"
)

// File and directory names inside the output root
const (
	UploadsDirName        = "uploads"
	WorkDirName           = ".work"
	ClipsDirName          = "clips"
	ManifestFileName      = "feed.json"
	ManifestLockFileName  = ".feed.lock"
	TranscriptJSONName    = "transcript.json"
	TranscriptTextName    = "transcript.txt"
	AudioExtension        = ".mp3"
	EpisodeDirDateLayout  = "2006-01-02"
	EpisodeDirDateDivider = "_"
)

// Blob keys
const (
	BlobEpisodesPrefix = "episodes/"
)
