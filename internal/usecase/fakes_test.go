package usecase

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"localtube/internal/domain"
)

// --- shared fakes for the worker tests ---

type fakeStore struct {
	mu      sync.Mutex
	sources map[domain.SourceID]domain.Source
	medias  map[domain.MediaID]domain.Media
	lastID  int64

	getMediaErr        error
	getSourceErr       error
	setMediaPathErr    error
	createMediaErr     error
	updateMetadataErr  error
	setRefreshedAtErr  error
	setScheduledAtErr  error
	listSourcesErr     error
	findMediaByURLErr  error
	updateSourceMetaFn func(id domain.SourceID, m *domain.SourceMetadata)

	setMediaPathCalls   int
	createMediaCalls    int
	updateMediaCalls    int
	listSourcesCalls    int
	deleteMediaCalls    int
	deletedMedias       []domain.MediaID
	refreshedSources    []domain.SourceID
	scheduledSources    []domain.SourceID
	updatedSourceMetas  []*domain.SourceMetadata
	updateSourceCalls   int
	lastUpdatedSourceID domain.SourceID
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sources: make(map[domain.SourceID]domain.Source),
		medias:  make(map[domain.MediaID]domain.Media),
	}
}

func (f *fakeStore) nextID() int64 {
	f.lastID++
	return f.lastID
}

func (f *fakeStore) addSource(s domain.Source) domain.Source {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == 0 {
		s.ID = domain.SourceID(f.nextID())
	}
	f.sources[s.ID] = s
	return s
}

func (f *fakeStore) addMedia(m domain.Media) domain.Media {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m.ID == 0 {
		m.ID = domain.MediaID(f.nextID())
	}
	f.medias[m.ID] = m
	return m
}

func (f *fakeStore) media(id domain.MediaID) (domain.Media, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.medias[id]
	return m, ok
}

func (f *fakeStore) source(id domain.SourceID) (domain.Source, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sources[id]
	return s, ok
}

func (f *fakeStore) CreateSource(ctx context.Context, s domain.Source) (domain.Source, error) {
	return f.addSource(s), nil
}

func (f *fakeStore) UpdateSource(ctx context.Context, s domain.Source) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateSourceCalls++
	f.lastUpdatedSourceID = s.ID
	if _, ok := f.sources[s.ID]; !ok {
		return domain.ErrNotFound
	}
	f.sources[s.ID] = s
	return nil
}

func (f *fakeStore) UpdateSourceMetadata(ctx context.Context, id domain.SourceID, m *domain.SourceMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateMetadataErr != nil {
		return f.updateMetadataErr
	}
	src, ok := f.sources[id]
	if !ok {
		return domain.ErrNotFound
	}
	src.Metadata = m
	f.sources[id] = src
	f.updatedSourceMetas = append(f.updatedSourceMetas, m)
	if f.updateSourceMetaFn != nil {
		f.updateSourceMetaFn(id, m)
	}
	return nil
}

func (f *fakeStore) SetSourceRefreshedAt(ctx context.Context, id domain.SourceID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setRefreshedAtErr != nil {
		return f.setRefreshedAtErr
	}
	src, ok := f.sources[id]
	if !ok {
		return domain.ErrNotFound
	}
	src.LastRefreshedAt = &at
	f.sources[id] = src
	f.refreshedSources = append(f.refreshedSources, id)
	return nil
}

func (f *fakeStore) SetSourceScheduledAt(ctx context.Context, id domain.SourceID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setScheduledAtErr != nil {
		return f.setScheduledAtErr
	}
	src, ok := f.sources[id]
	if !ok {
		return domain.ErrNotFound
	}
	src.LastScheduledRefresh = &at
	f.sources[id] = src
	f.scheduledSources = append(f.scheduledSources, id)
	return nil
}

func (f *fakeStore) GetSource(ctx context.Context, id domain.SourceID) (domain.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getSourceErr != nil {
		return domain.Source{}, f.getSourceErr
	}
	src, ok := f.sources[id]
	if !ok {
		return domain.Source{}, domain.ErrNotFound
	}
	return src, nil
}

func (f *fakeStore) ListSources(ctx context.Context) ([]domain.Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listSourcesCalls++
	if f.listSourcesErr != nil {
		return nil, f.listSourcesErr
	}
	out := make([]domain.Source, 0, len(f.sources))
	for _, s := range f.sources {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeStore) DeleteSource(ctx context.Context, id domain.SourceID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sources[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.sources, id)
	for mid, m := range f.medias {
		if m.SourceID == id {
			delete(f.medias, mid)
		}
	}
	return nil
}

func (f *fakeStore) CreateMedia(ctx context.Context, m domain.Media) (domain.Media, error) {
	f.mu.Lock()
	if f.createMediaErr != nil {
		f.mu.Unlock()
		return domain.Media{}, f.createMediaErr
	}
	f.createMediaCalls++
	f.mu.Unlock()
	return f.addMedia(m), nil
}

func (f *fakeStore) UpdateMediaMetadata(ctx context.Context, id domain.MediaID, meta *domain.MediaMetadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateMediaCalls++
	m, ok := f.medias[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.Metadata = meta
	f.medias[id] = m
	return nil
}

func (f *fakeStore) SetMediaPath(ctx context.Context, id domain.MediaID, path *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setMediaPathErr != nil {
		return f.setMediaPathErr
	}
	f.setMediaPathCalls++
	m, ok := f.medias[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.MediaPath = path
	f.medias[id] = m
	return nil
}

func (f *fakeStore) GetMedia(ctx context.Context, id domain.MediaID) (domain.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getMediaErr != nil {
		return domain.Media{}, f.getMediaErr
	}
	m, ok := f.medias[id]
	if !ok {
		return domain.Media{}, domain.ErrNotFound
	}
	return m, nil
}

func (f *fakeStore) FindMediaByURL(ctx context.Context, sourceID domain.SourceID, needle string) (domain.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.findMediaByURLErr != nil {
		return domain.Media{}, f.findMediaByURLErr
	}
	for _, m := range f.medias {
		if m.SourceID == sourceID && strings.Contains(m.URL, needle) {
			return m, nil
		}
	}
	return domain.Media{}, domain.ErrNotFound
}

func (f *fakeStore) ListMedias(ctx context.Context, sourceID *domain.SourceID) ([]domain.Media, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Media, 0, len(f.medias))
	for _, m := range f.medias {
		if sourceID != nil && m.SourceID != *sourceID {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeStore) DeleteMedia(ctx context.Context, id domain.MediaID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.medias[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.medias, id)
	f.deleteMediaCalls++
	f.deletedMedias = append(f.deletedMedias, id)
	return nil
}

type probeCall struct {
	url  string
	mode domain.ProbeMode
}

type streamCall struct {
	url     string
	reverse bool
}

type fakeExtractor struct {
	mu sync.Mutex

	probeResult domain.ListProbe
	probeErr    error
	probeCalls  []probeCall

	tabs      []domain.ListTab
	tabsErr   error
	tabsCalls int

	singleRecord domain.VideoRecord
	singleErr    error
	singleCalls  int

	streamItems []domain.StreamItem
	streamCalls []streamCall

	downloadPath  string
	downloadErr   error
	downloadCalls int
	downloadURLs  []string
}

func (f *fakeExtractor) ProbeMetadata(ctx context.Context, url string, mode domain.ProbeMode) (domain.ListProbe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeCalls = append(f.probeCalls, probeCall{url: url, mode: mode})
	if f.probeErr != nil {
		return domain.ListProbe{}, f.probeErr
	}
	return f.probeResult, nil
}

func (f *fakeExtractor) ProbeListTabs(ctx context.Context, url string) ([]domain.ListTab, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tabsCalls++
	if f.tabsErr != nil {
		return nil, f.tabsErr
	}
	return f.tabs, nil
}

func (f *fakeExtractor) SingleMetadata(ctx context.Context, url string) (domain.VideoRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.singleCalls++
	if f.singleErr != nil {
		return domain.VideoRecord{}, f.singleErr
	}
	return f.singleRecord, nil
}

func (f *fakeExtractor) StreamList(ctx context.Context, url string, reverse bool) <-chan domain.StreamItem {
	f.mu.Lock()
	f.streamCalls = append(f.streamCalls, streamCall{url: url, reverse: reverse})
	items := f.streamItems
	f.mu.Unlock()

	ch := make(chan domain.StreamItem, len(items)+1)
	for _, item := range items {
		ch <- item
	}
	close(ch)
	return ch
}

func (f *fakeExtractor) Download(ctx context.Context, url string, source domain.Source) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloadCalls++
	f.downloadURLs = append(f.downloadURLs, url)
	if f.downloadErr != nil {
		return "", f.downloadErr
	}
	return f.downloadPath, nil
}

func (f *fakeExtractor) downloads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.downloadCalls
}

type fakeRefreshRequester struct {
	mu  sync.Mutex
	ids []domain.SourceID
	err error
}

func (f *fakeRefreshRequester) ScheduleRefresh(ctx context.Context, sourceID domain.SourceID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, sourceID)
	return f.err
}

func (f *fakeRefreshRequester) scheduled() []domain.SourceID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.SourceID(nil), f.ids...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(nopWriter{}, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
