package mongo

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"localtube/internal/domain"
)

// Store keeps the source/media catalog in MongoDB. IDs are small
// monotonically increasing integers allocated from a counters collection
// so they stay stable across restarts and friendly in URLs.
type Store struct {
	sources  *mongo.Collection
	medias   *mongo.Collection
	counters *mongo.Collection
}

type listTabDoc struct {
	URL   string `bson:"url"`
	Label string `bson:"label"`
}

type sourceMetadataDoc struct {
	Uploader       string       `bson:"uploader"`
	Items          uint64       `bson:"items"`
	SourceProvider string       `bson:"sourceProvider"`
	ListKind       string       `bson:"listKind,omitempty"`
	ListCount      *uint64      `bson:"listCount,omitempty"`
	ListOrder      string       `bson:"listOrder,omitempty"`
	ListTab        *string      `bson:"listTab,omitempty"`
	ListTabs       []listTabDoc `bson:"listTabs,omitempty"`
}

type sourceDoc struct {
	ID                   int64              `bson:"_id"`
	URL                  string             `bson:"url"`
	FetchLastDays        int                `bson:"fetchLastDays"`
	RefreshFrequency     int                `bson:"refreshFrequency"`
	Sponsorblock         string             `bson:"sponsorblock,omitempty"`
	Metadata             *sourceMetadataDoc `bson:"metadata,omitempty"`
	LastRefreshedAt      *int64             `bson:"lastRefreshedAt,omitempty"`
	LastScheduledRefresh *int64             `bson:"lastScheduledRefresh,omitempty"`
	CreatedAt            int64              `bson:"createdAt"`
	UpdatedAt            int64              `bson:"updatedAt"`
}

type mediaMetadataDoc struct {
	Title        string  `bson:"title"`
	Description  *string `bson:"description,omitempty"`
	Duration     uint64  `bson:"duration"`
	ExtractorKey string  `bson:"extractorKey"`
	OriginalURL  string  `bson:"originalUrl"`
	Timestamp    int64   `bson:"timestamp"`
}

type mediaDoc struct {
	ID        int64             `bson:"_id"`
	SourceID  int64             `bson:"sourceId"`
	URL       string            `bson:"url"`
	Metadata  *mediaMetadataDoc `bson:"metadata,omitempty"`
	MediaPath *string           `bson:"mediaPath,omitempty"`
	CreatedAt int64             `bson:"createdAt"`
	UpdatedAt int64             `bson:"updatedAt"`
}

func NewStore(client *mongo.Client, dbName string) *Store {
	db := client.Database(dbName)
	return &Store{
		sources:  db.Collection("sources"),
		medias:   db.Collection("medias"),
		counters: db.Collection("counters"),
	}
}

func Connect(ctx context.Context, uri string, extra ...*options.ClientOptions) (*mongo.Client, error) {
	opts := append([]*options.ClientOptions{options.Client().ApplyURI(uri)}, extra...)
	client, err := mongo.Connect(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (s *Store) EnsureIndexes(ctx context.Context) error {
	if s == nil {
		return nil
	}
	sourceModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "url", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	if _, err := s.sources.Indexes().CreateMany(ctx, sourceModels); err != nil {
		return err
	}
	mediaModels := []mongo.IndexModel{
		{Keys: bson.D{{Key: "sourceId", Value: 1}}},
		{Keys: bson.D{{Key: "sourceId", Value: 1}, {Key: "url", Value: 1}}},
	}
	_, err := s.medias.Indexes().CreateMany(ctx, mediaModels)
	return err
}

// nextID hands out the next value of a named sequence, creating the
// counter document on first use.
func (s *Store) nextID(ctx context.Context, sequence string) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters.FindOneAndUpdate(
		ctx,
		bson.M{"_id": sequence},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&doc)
	if err != nil {
		return 0, err
	}
	return doc.Seq, nil
}

func (s *Store) CreateSource(ctx context.Context, src domain.Source) (domain.Source, error) {
	id, err := s.nextID(ctx, "sources")
	if err != nil {
		return domain.Source{}, err
	}
	now := time.Now().UTC().Truncate(time.Second)
	src.ID = domain.SourceID(id)
	src.CreatedAt = now
	src.UpdatedAt = now
	if _, err := s.sources.InsertOne(ctx, toSourceDoc(src)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.Source{}, domain.ErrAlreadyExists
		}
		return domain.Source{}, err
	}
	return src, nil
}

func (s *Store) UpdateSource(ctx context.Context, src domain.Source) error {
	update := bson.M{
		"url":              src.URL,
		"fetchLastDays":    src.FetchLastDays,
		"refreshFrequency": src.RefreshFrequency,
		"sponsorblock":     src.Sponsorblock,
		"metadata":         toSourceMetadataDoc(src.Metadata),
		"updatedAt":        time.Now().UTC().Unix(),
	}
	res, err := s.sources.UpdateOne(ctx, bson.M{"_id": int64(src.ID)}, bson.M{"$set": update})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domain.ErrAlreadyExists
		}
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) UpdateSourceMetadata(ctx context.Context, id domain.SourceID, m *domain.SourceMetadata) error {
	update := bson.M{
		"metadata":  toSourceMetadataDoc(m),
		"updatedAt": time.Now().UTC().Unix(),
	}
	res, err := s.sources.UpdateOne(ctx, bson.M{"_id": int64(id)}, bson.M{"$set": update})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) SetSourceRefreshedAt(ctx context.Context, id domain.SourceID, at time.Time) error {
	return s.setSourceTimestamp(ctx, id, "lastRefreshedAt", at)
}

func (s *Store) SetSourceScheduledAt(ctx context.Context, id domain.SourceID, at time.Time) error {
	return s.setSourceTimestamp(ctx, id, "lastScheduledRefresh", at)
}

func (s *Store) setSourceTimestamp(ctx context.Context, id domain.SourceID, field string, at time.Time) error {
	res, err := s.sources.UpdateOne(
		ctx,
		bson.M{"_id": int64(id)},
		bson.M{"$set": bson.M{
			field:       at.UTC().Unix(),
			"updatedAt": time.Now().UTC().Unix(),
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) GetSource(ctx context.Context, id domain.SourceID) (domain.Source, error) {
	var doc sourceDoc
	if err := s.sources.FindOne(ctx, bson.M{"_id": int64(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Source{}, domain.ErrNotFound
		}
		return domain.Source{}, err
	}
	return fromSourceDoc(doc), nil
}

func (s *Store) ListSources(ctx context.Context) ([]domain.Source, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}})
	cursor, err := s.sources.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []sourceDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return fromSourceDocs(docs), nil
}

// DeleteSource removes the source and every media that belongs to it.
func (s *Store) DeleteSource(ctx context.Context, id domain.SourceID) error {
	if _, err := s.medias.DeleteMany(ctx, bson.M{"sourceId": int64(id)}); err != nil {
		return err
	}
	res, err := s.sources.DeleteOne(ctx, bson.M{"_id": int64(id)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) CreateMedia(ctx context.Context, m domain.Media) (domain.Media, error) {
	id, err := s.nextID(ctx, "medias")
	if err != nil {
		return domain.Media{}, err
	}
	now := time.Now().UTC().Truncate(time.Second)
	m.ID = domain.MediaID(id)
	m.CreatedAt = now
	m.UpdatedAt = now
	if _, err := s.medias.InsertOne(ctx, toMediaDoc(m)); err != nil {
		return domain.Media{}, err
	}
	return m, nil
}

func (s *Store) UpdateMediaMetadata(ctx context.Context, id domain.MediaID, meta *domain.MediaMetadata) error {
	update := bson.M{
		"metadata":  toMediaMetadataDoc(meta),
		"updatedAt": time.Now().UTC().Unix(),
	}
	res, err := s.medias.UpdateOne(ctx, bson.M{"_id": int64(id)}, bson.M{"$set": update})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) SetMediaPath(ctx context.Context, id domain.MediaID, path *string) error {
	var update bson.M
	if path == nil {
		update = bson.M{
			"$unset": bson.M{"mediaPath": ""},
			"$set":   bson.M{"updatedAt": time.Now().UTC().Unix()},
		}
	} else {
		update = bson.M{
			"$set": bson.M{
				"mediaPath": *path,
				"updatedAt": time.Now().UTC().Unix(),
			},
		}
	}
	res, err := s.medias.UpdateOne(ctx, bson.M{"_id": int64(id)}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *Store) GetMedia(ctx context.Context, id domain.MediaID) (domain.Media, error) {
	var doc mediaDoc
	if err := s.medias.FindOne(ctx, bson.M{"_id": int64(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Media{}, domain.ErrNotFound
		}
		return domain.Media{}, err
	}
	return fromMediaDoc(doc), nil
}

func (s *Store) FindMediaByURL(ctx context.Context, sourceID domain.SourceID, needle string) (domain.Media, error) {
	filter := bson.M{
		"sourceId": int64(sourceID),
		"url":      bson.M{"$regex": regexp.QuoteMeta(needle)},
	}
	var doc mediaDoc
	if err := s.medias.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domain.Media{}, domain.ErrNotFound
		}
		return domain.Media{}, err
	}
	return fromMediaDoc(doc), nil
}

func (s *Store) ListMedias(ctx context.Context, sourceID *domain.SourceID) ([]domain.Media, error) {
	filter := bson.M{}
	if sourceID != nil {
		filter["sourceId"] = int64(*sourceID)
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}})
	cursor, err := s.medias.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []mediaDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return fromMediaDocs(docs), nil
}

func (s *Store) DeleteMedia(ctx context.Context, id domain.MediaID) error {
	res, err := s.medias.DeleteOne(ctx, bson.M{"_id": int64(id)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func toSourceDoc(s domain.Source) sourceDoc {
	return sourceDoc{
		ID:                   int64(s.ID),
		URL:                  s.URL,
		FetchLastDays:        s.FetchLastDays,
		RefreshFrequency:     s.RefreshFrequency,
		Sponsorblock:         s.Sponsorblock,
		Metadata:             toSourceMetadataDoc(s.Metadata),
		LastRefreshedAt:      unixPtr(s.LastRefreshedAt),
		LastScheduledRefresh: unixPtr(s.LastScheduledRefresh),
		CreatedAt:            s.CreatedAt.Unix(),
		UpdatedAt:            s.UpdatedAt.Unix(),
	}
}

func fromSourceDoc(doc sourceDoc) domain.Source {
	return domain.Source{
		ID:                   domain.SourceID(doc.ID),
		URL:                  doc.URL,
		FetchLastDays:        doc.FetchLastDays,
		RefreshFrequency:     doc.RefreshFrequency,
		Sponsorblock:         doc.Sponsorblock,
		Metadata:             fromSourceMetadataDoc(doc.Metadata),
		LastRefreshedAt:      timePtrFromUnix(doc.LastRefreshedAt),
		LastScheduledRefresh: timePtrFromUnix(doc.LastScheduledRefresh),
		CreatedAt:            timeFromUnix(doc.CreatedAt),
		UpdatedAt:            timeFromUnix(doc.UpdatedAt),
	}
}

func fromSourceDocs(docs []sourceDoc) []domain.Source {
	sources := make([]domain.Source, 0, len(docs))
	for _, doc := range docs {
		sources = append(sources, fromSourceDoc(doc))
	}
	return sources
}

func toSourceMetadataDoc(m *domain.SourceMetadata) *sourceMetadataDoc {
	if m == nil {
		return nil
	}
	tabs := make([]listTabDoc, 0, len(m.ListTabs))
	for _, t := range m.ListTabs {
		tabs = append(tabs, listTabDoc{URL: t.URL, Label: t.Label})
	}
	if len(tabs) == 0 {
		tabs = nil
	}
	return &sourceMetadataDoc{
		Uploader:       m.Uploader,
		Items:          m.Items,
		SourceProvider: m.SourceProvider,
		ListKind:       string(m.ListKind),
		ListCount:      m.ListCount,
		ListOrder:      string(m.ListOrder),
		ListTab:        m.ListTab,
		ListTabs:       tabs,
	}
}

func fromSourceMetadataDoc(doc *sourceMetadataDoc) *domain.SourceMetadata {
	if doc == nil {
		return nil
	}
	tabs := make([]domain.ListTab, 0, len(doc.ListTabs))
	for _, t := range doc.ListTabs {
		tabs = append(tabs, domain.ListTab{URL: t.URL, Label: t.Label})
	}
	if len(tabs) == 0 {
		tabs = nil
	}
	return &domain.SourceMetadata{
		Uploader:       doc.Uploader,
		Items:          doc.Items,
		SourceProvider: doc.SourceProvider,
		ListKind:       domain.ListKind(doc.ListKind),
		ListCount:      doc.ListCount,
		ListOrder:      domain.ListOrder(doc.ListOrder),
		ListTab:        doc.ListTab,
		ListTabs:       tabs,
	}
}

func toMediaDoc(m domain.Media) mediaDoc {
	return mediaDoc{
		ID:        int64(m.ID),
		SourceID:  int64(m.SourceID),
		URL:       m.URL,
		Metadata:  toMediaMetadataDoc(m.Metadata),
		MediaPath: m.MediaPath,
		CreatedAt: m.CreatedAt.Unix(),
		UpdatedAt: m.UpdatedAt.Unix(),
	}
}

func fromMediaDoc(doc mediaDoc) domain.Media {
	return domain.Media{
		ID:        domain.MediaID(doc.ID),
		SourceID:  domain.SourceID(doc.SourceID),
		URL:       doc.URL,
		Metadata:  fromMediaMetadataDoc(doc.Metadata),
		MediaPath: doc.MediaPath,
		CreatedAt: timeFromUnix(doc.CreatedAt),
		UpdatedAt: timeFromUnix(doc.UpdatedAt),
	}
}

func fromMediaDocs(docs []mediaDoc) []domain.Media {
	medias := make([]domain.Media, 0, len(docs))
	for _, doc := range docs {
		medias = append(medias, fromMediaDoc(doc))
	}
	return medias
}

func toMediaMetadataDoc(m *domain.MediaMetadata) *mediaMetadataDoc {
	if m == nil {
		return nil
	}
	return &mediaMetadataDoc{
		Title:        m.Title,
		Description:  m.Description,
		Duration:     m.Duration,
		ExtractorKey: m.ExtractorKey,
		OriginalURL:  m.OriginalURL,
		Timestamp:    m.Timestamp,
	}
}

func fromMediaMetadataDoc(doc *mediaMetadataDoc) *domain.MediaMetadata {
	if doc == nil {
		return nil
	}
	return &domain.MediaMetadata{
		Title:        doc.Title,
		Description:  doc.Description,
		Duration:     doc.Duration,
		ExtractorKey: doc.ExtractorKey,
		OriginalURL:  doc.OriginalURL,
		Timestamp:    doc.Timestamp,
	}
}

func timeFromUnix(value int64) time.Time {
	return time.Unix(value, 0).UTC()
}

func unixPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	v := t.UTC().Unix()
	return &v
}

func timePtrFromUnix(value *int64) *time.Time {
	if value == nil {
		return nil
	}
	t := timeFromUnix(*value)
	return &t
}
