// Package pbstore stores visits in the embedded PocketBase database.
package pbstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/EMADHASSAN-123/Al-shifa-association/core/visitors"
	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
)

// DailyCollectionName holds one unique-visitor snapshot per calendar day.
const DailyCollectionName = "visitor_daily"

// ErrNotReady is returned by Provider while the app is still starting.
var ErrNotReady = errors.New("pocketbase app not bootstrapped")

// EnsureCollections creates the visitors and visitor_daily collections when missing.
func EnsureCollections(app core.App) error {
	if err := ensureVisitors(app); err != nil {
		return err
	}
	return ensureDaily(app)
}

func ensureVisitors(app core.App) error {
	existing, _ := app.FindCollectionByNameOrId(visitors.CollectionName)
	if existing != nil {
		app.Logger().Debug("visitors collection already exists", "id", existing.Id)
		return nil
	}

	collection := core.NewBaseCollection(visitors.CollectionName)

	collection.Fields.Add(&core.TextField{Name: "fingerprint", Required: true, Max: 255})
	collection.Fields.Add(&core.TextField{Name: "ip_address", Max: 64})
	collection.Fields.Add(&core.TextField{Name: "user_agent", Max: visitors.MaxUserAgentLength})
	collection.Fields.Add(&core.TextField{Name: "referrer"})
	collection.Fields.Add(&core.TextField{Name: "screen_resolution", Max: 32})
	collection.Fields.Add(&core.TextField{Name: "timezone", Max: 64})
	collection.Fields.Add(&core.TextField{Name: "language", Max: 64})
	collection.Fields.Add(&core.DateField{Name: "visited_at", Required: true})
	collection.Fields.Add(&core.TextField{Name: "page_url"})
	collection.Fields.Add(&core.TextField{Name: "page_path"})
	collection.Fields.Add(&core.AutodateField{Name: "created", OnCreate: true})

	// superuser only
	collection.ListRule = nil
	collection.ViewRule = nil
	collection.CreateRule = nil
	collection.UpdateRule = nil
	collection.DeleteRule = nil

	collection.AddIndex("idx_visitors_visited_at", false, "visited_at", "")
	collection.AddIndex("idx_visitors_fingerprint", false, "fingerprint", "")

	if err := app.Save(collection); err != nil {
		app.Logger().Error("Failed to create visitors collection", "error", err)
		return err
	}

	app.Logger().Info("Created visitors collection")
	return nil
}

func ensureDaily(app core.App) error {
	existing, _ := app.FindCollectionByNameOrId(DailyCollectionName)
	if existing != nil {
		return nil
	}

	collection := core.NewBaseCollection(DailyCollectionName)
	collection.Fields.Add(&core.TextField{Name: "day", Required: true, Max: 10})
	collection.Fields.Add(&core.NumberField{Name: "unique_visitors", OnlyInt: true})
	collection.Fields.Add(&core.AutodateField{Name: "created", OnCreate: true})
	collection.Fields.Add(&core.AutodateField{Name: "updated", OnCreate: true, OnUpdate: true})
	collection.AddIndex("idx_visitor_daily_day", true, "day", "")

	if err := app.Save(collection); err != nil {
		app.Logger().Error("Failed to create visitor_daily collection", "error", err)
		return err
	}

	app.Logger().Info("Created visitor_daily collection")
	return nil
}

// Store is a visitors.Backend over a PocketBase collection.
type Store struct {
	app        core.App
	collection *core.Collection
}

var _ visitors.Backend = (*Store)(nil)

// New returns a store over the visitors collection.
func New(app core.App) (*Store, error) {
	collection, err := app.FindCachedCollectionByNameOrId(visitors.CollectionName)
	if err != nil {
		return nil, fmt.Errorf("find %s collection: %w", visitors.CollectionName, err)
	}
	return &Store{app: app, collection: collection}, nil
}

// Provider yields a Store once app is bootstrapped and the collection exists.
func Provider(app core.App) visitors.Provider {
	return func(ctx context.Context) (visitors.Backend, error) {
		if !app.IsBootstrapped() {
			return nil, ErrNotReady
		}
		return New(app)
	}
}

func (s *Store) Insert(ctx context.Context, v visitors.VisitRecord) error {
	record := core.NewRecord(s.collection)
	record.Set("fingerprint", v.Fingerprint)
	record.Set("ip_address", v.IPAddress)
	record.Set("user_agent", v.UserAgent)
	record.Set("referrer", v.Referrer)
	record.Set("screen_resolution", v.ScreenResolution)
	record.Set("timezone", v.Timezone)
	record.Set("language", v.Language)
	record.Set("visited_at", v.VisitedAt.UTC())
	record.Set("page_url", v.PageURL)
	record.Set("page_path", v.PagePath)

	return s.app.SaveWithContext(ctx, record)
}

func (s *Store) Query(ctx context.Context, q visitors.Query) ([]visitors.VisitRecord, error) {
	query := s.app.RecordQuery(s.collection).WithContext(ctx)

	if !q.Since.IsZero() {
		since, err := types.ParseDateTime(q.Since.UTC())
		if err != nil {
			return nil, err
		}
		query = query.AndWhere(dbx.NewExp("visited_at >= {:since}", dbx.Params{"since": since.String()}))
	}

	if q.Order == visitors.OrderDesc {
		query = query.OrderBy("visited_at DESC", "rowid DESC")
	} else {
		query = query.OrderBy("visited_at ASC", "rowid ASC")
	}

	if q.Limit > 0 {
		query = query.Limit(int64(q.Limit))
	}

	var records []*core.Record
	if err := query.All(&records); err != nil {
		return nil, fmt.Errorf("query visitors: %w", err)
	}

	out := make([]visitors.VisitRecord, 0, len(records))
	for _, r := range records {
		out = append(out, toVisitRecord(r))
	}
	return out, nil
}

func toVisitRecord(r *core.Record) visitors.VisitRecord {
	return visitors.VisitRecord{
		Fingerprint:      r.GetString("fingerprint"),
		IPAddress:        r.GetString("ip_address"),
		UserAgent:        r.GetString("user_agent"),
		Referrer:         r.GetString("referrer"),
		ScreenResolution: r.GetString("screen_resolution"),
		Timezone:         r.GetString("timezone"),
		Language:         r.GetString("language"),
		VisitedAt:        r.GetDateTime("visited_at").Time(),
		PageURL:          r.GetString("page_url"),
		PagePath:         r.GetString("page_path"),
	}
}

// SnapshotDaily stores the unique visitor count of day, replacing an
// earlier snapshot of the same day.
func SnapshotDaily(app core.App, day string, count int) error {
	collection, err := app.FindCachedCollectionByNameOrId(DailyCollectionName)
	if err != nil {
		return fmt.Errorf("find %s collection: %w", DailyCollectionName, err)
	}

	record, err := app.FindFirstRecordByData(collection, "day", day)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		record = core.NewRecord(collection)
		record.Set("day", day)
	case err != nil:
		return fmt.Errorf("find %s snapshot: %w", day, err)
	}
	record.Set("unique_visitors", count)

	return app.Save(record)
}

// DailySnapshot is a stored per-day count.
type DailySnapshot struct {
	Day            string `json:"day"`
	UniqueVisitors int    `json:"unique_visitors"`
}

// Snapshots returns the stored snapshots, newest day first.
func Snapshots(app core.App, limit int) ([]DailySnapshot, error) {
	var records []*core.Record
	query := app.RecordQuery(DailyCollectionName).OrderBy("day DESC")
	if limit > 0 {
		query = query.Limit(int64(limit))
	}
	if err := query.All(&records); err != nil {
		return nil, err
	}

	out := make([]DailySnapshot, 0, len(records))
	for _, r := range records {
		out = append(out, DailySnapshot{Day: r.GetString("day"), UniqueVisitors: r.GetInt("unique_visitors")})
	}
	return out, nil
}
