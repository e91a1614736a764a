package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/jo-hoe/podify/internal/blob"
	"github.com/jo-hoe/podify/internal/common"
	"github.com/jo-hoe/podify/internal/podcast"
	"github.com/jo-hoe/podify/internal/util"
)

// DefaultMaxEpisodes caps the manifest length.
const DefaultMaxEpisodes = 60

// Prober measures an audio file's duration in seconds.
type Prober interface {
	Probe(ctx context.Context, path string) (float64, error)
}

type Options struct {
	MaxEpisodes int
	// Blob receives uploaded audio and remote deletes. Optional.
	Blob   blob.Store
	Prober Prober
	Log    *slog.Logger
}

// Registry records finished episodes in the manifest.
type Registry struct {
	store  ManifestStore
	max    int
	blob   blob.Store
	prober Prober
	log    *slog.Logger
	title  cases.Caser
}

// NewRegistry returns a Registry over store. Remote upload and duration
// probing are enabled only when opts carries a Blob and a Prober.
func NewRegistry(store ManifestStore, opts Options) *Registry {
	if opts.MaxEpisodes <= 0 {
		opts.MaxEpisodes = DefaultMaxEpisodes
	}
	if opts.Log == nil {
		opts.Log = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		store:  store,
		max:    opts.MaxEpisodes,
		blob:   opts.Blob,
		prober: opts.Prober,
		log:    opts.Log,
		title:  cases.Title(language.Und),
	}
}

// Append inserts ep at the head of the manifest. A colliding slug gets a
// numeric suffix (-2, -3, ...). Entries beyond the maximum are evicted from
// the tail and their remote assets deleted best-effort. The stored entry is
// returned.
func (r *Registry) Append(ctx context.Context, outputDir string, ep EpisodeMeta) (EpisodeMeta, error) {
	unlock, err := r.store.Lock(ctx, outputDir)
	if err != nil {
		return EpisodeMeta{}, err
	}
	defer r.release(unlock)

	m, err := r.store.Load(ctx, outputDir)
	if err != nil {
		return EpisodeMeta{}, err
	}
	if ep.GUID == "" {
		ep.GUID = util.NewID()
	}
	ep.Slug = uniqueSlug(ep.Slug, m.slugs())

	m.Episodes = append([]EpisodeMeta{ep}, m.Episodes...)
	var evicted []EpisodeMeta
	if len(m.Episodes) > r.max {
		evicted = append(evicted, m.Episodes[r.max:]...)
		m.Episodes = m.Episodes[:r.max]
	}
	if err := r.store.Save(ctx, outputDir, m); err != nil {
		return EpisodeMeta{}, err
	}
	r.log.Info("episode registered", "slug", ep.Slug, "episodes", len(m.Episodes))

	for _, old := range evicted {
		r.log.Info("episode evicted", "slug", old.Slug)
		if old.BlobURL == "" || r.blob == nil {
			continue
		}
		if err := r.blob.Delete(ctx, old.BlobURL); err != nil {
			r.log.Warn("remote asset delete failed", "slug", old.Slug, "url", old.BlobURL, "err", err)
		}
	}
	return ep, nil
}

// uniqueSlug returns slug, or slug-N for the smallest N >= 2 not in taken.
func uniqueSlug(slug string, taken map[string]struct{}) string {
	if _, ok := taken[slug]; !ok {
		return slug
	}
	for n := 2; ; n++ {
		candidate := slug + "-" + strconv.Itoa(n)
		if _, ok := taken[candidate]; !ok {
			return candidate
		}
	}
}

// List returns the manifest entries, newest first.
func (r *Registry) List(ctx context.Context, outputDir string) (*Manifest, error) {
	return r.store.Load(ctx, outputDir)
}

func (r *Registry) Find(ctx context.Context, outputDir, slug string) (EpisodeMeta, bool, error) {
	m, err := r.store.Load(ctx, outputDir)
	if err != nil {
		return EpisodeMeta{}, false, err
	}
	ep, ok := m.Find(slug)
	return ep, ok, nil
}

// UploadAudio stores the episode audio in the blob store and returns its URL.
func (r *Registry) UploadAudio(ctx context.Context, slug string, pubDate time.Time, path string) (string, error) {
	if r.blob == nil {
		return "", nil
	}
	f, err := os.Open(path) // #nosec G304 - episode audio under output dir
	if err != nil {
		return "", fmt.Errorf("open audio: %w", err)
	}
	defer func() { _ = f.Close() }()
	key := common.BlobEpisodesPrefix + pubDate.UTC().Format(common.EpisodeDirDateLayout) + common.EpisodeDirDateDivider + slug + common.AudioExtension
	url, err := r.blob.Put(ctx, key, f, common.ContentTypeMP3)
	if err != nil {
		return "", fmt.Errorf("upload audio: %w", err)
	}
	return url, nil
}

// RebuildFromDisk adds manifest entries for episode directories under
// outputDir that the manifest does not know yet, then re-sorts the whole
// manifest newest first. It returns the number of entries added. Slugs come
// from existing file names, so no collision suffixing happens here.
func (r *Registry) RebuildFromDisk(ctx context.Context, outputDir string) (int, error) {
	unlock, err := r.store.Lock(ctx, outputDir)
	if err != nil {
		return 0, err
	}
	defer r.release(unlock)

	m, err := r.store.Load(ctx, outputDir)
	if err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		return 0, fmt.Errorf("read output dir: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") && e.Name() != common.UploadsDirName {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	known := m.slugs()
	added := 0
	for _, dir := range names {
		if err := ctx.Err(); err != nil {
			return added, err
		}
		full := filepath.Join(outputDir, dir)
		audio, err := findAudio(full)
		if err != nil {
			r.log.Warn("skipping episode directory", "dir", dir, "err", err)
			continue
		}
		if audio == nil {
			continue
		}
		// Known episodes are neither probed nor uploaded again.
		if _, dup := known[audioSlug(audio)]; dup {
			continue
		}
		ep, err := r.discover(ctx, full, dir, audio)
		if err != nil {
			r.log.Warn("skipping episode directory", "dir", dir, "err", err)
			continue
		}
		known[ep.Slug] = struct{}{}
		m.Episodes = append(m.Episodes, ep)
		added++
		r.log.Info("episode discovered", "slug", ep.Slug, "dir", dir)
	}

	sort.SliceStable(m.Episodes, func(i, j int) bool {
		return m.Episodes[i].PubDate.After(m.Episodes[j].PubDate)
	})
	if err := r.store.Save(ctx, outputDir, m); err != nil {
		return added, err
	}
	return added, nil
}

// findAudio returns the first MP3 in dir, or nil when there is none.
func findAudio(dir string) (os.DirEntry, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if !f.IsDir() && strings.EqualFold(filepath.Ext(f.Name()), common.AudioExtension) {
			return f, nil
		}
	}
	return nil, nil
}

func audioSlug(audio os.DirEntry) string {
	return strings.TrimSuffix(audio.Name(), filepath.Ext(audio.Name()))
}

// discover builds an entry for a new episode directory: sidecars, duration
// probe and optional upload.
func (r *Registry) discover(ctx context.Context, full, dir string, audio os.DirEntry) (EpisodeMeta, error) {
	info, err := audio.Info()
	if err != nil {
		return EpisodeMeta{}, err
	}
	audioPath := filepath.Join(full, audio.Name())
	slug := audioSlug(audio)

	ep := EpisodeMeta{
		GUID:          util.NewID(),
		Slug:          slug,
		DirName:       dir,
		Title:         r.TitleFromSlug(slug),
		PubDate:       PubDateFromDir(dir, info.ModTime()),
		FileSizeBytes: info.Size(),
		AudioFileName: audio.Name(),
	}

	if b, err := os.ReadFile(filepath.Join(full, common.TranscriptTextName)); err == nil { // #nosec G304 - sidecar under output dir
		text := string(b)
		ep.Description = podcast.FallbackDescription(text)
		ep.WordCount = len(strings.Fields(text))
	}
	if lines, err := readTranscript(filepath.Join(full, common.TranscriptJSONName)); err == nil {
		ep.WordCount = podcast.WordCount(lines)
	}

	if r.prober != nil {
		d, err := r.prober.Probe(ctx, audioPath)
		if err != nil {
			r.log.Warn("duration probe failed", "slug", slug, "err", err)
		} else {
			ep.DurationSeconds = d
		}
	}
	if r.blob != nil {
		url, err := r.UploadAudio(ctx, slug, ep.PubDate, audioPath)
		if err != nil {
			r.log.Warn("audio upload failed", "slug", slug, "err", err)
		} else {
			ep.BlobURL = url
		}
	}
	return ep, nil
}

// TitleFromSlug turns "my-first-episode" into "My First Episode".
func (r *Registry) TitleFromSlug(slug string) string {
	return r.title.String(strings.ReplaceAll(slug, "-", " "))
}

// PubDateFromDir parses a YYYY-MM-DD_ directory prefix, falling back to
// fallback when the name does not carry one.
func PubDateFromDir(dir string, fallback time.Time) time.Time {
	prefix, _, ok := strings.Cut(dir, common.EpisodeDirDateDivider)
	if ok {
		if t, err := time.Parse(common.EpisodeDirDateLayout, prefix); err == nil {
			return t.UTC()
		}
	}
	return fallback.UTC()
}

// EpisodeDirName is the directory name used for an episode published at t.
func EpisodeDirName(t time.Time, slug string) string {
	return t.UTC().Format(common.EpisodeDirDateLayout) + common.EpisodeDirDateDivider + slug
}

func readTranscript(path string) ([]podcast.ScriptLine, error) {
	b, err := os.ReadFile(path) // #nosec G304 - sidecar under output dir
	if err != nil {
		return nil, err
	}
	var lines []podcast.ScriptLine
	if err := json.Unmarshal(b, &lines); err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, errors.New("empty transcript")
	}
	return lines, nil
}

func (r *Registry) release(unlock func() error) {
	if err := unlock(); err != nil {
		r.log.Warn("manifest unlock failed", "err", err)
	}
}
