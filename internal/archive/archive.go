// Package archive records finished matches and accumulates per-player career totals.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/multierr"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/raidx/scorer/internal/engine"
)

type MatchRecord struct {
	MatchID    string `gorm:"primaryKey"`
	TeamAName  string
	TeamBName  string
	TeamAScore int
	TeamBScore int
	Winner     string
	Raids      int
	Stats      []byte
	EndedAt    time.Time
}

type PlayerCareer struct {
	PlayerID      string `gorm:"primaryKey"`
	Name          string
	TotalPoints   int
	RaidPoints    int
	DefencePoints int
	Matches       int
}

// Record is one finished match as handed over by a session.
type Record struct {
	MatchID string
	State   engine.State
	Result  engine.Result
	EndedAt time.Time
}

type Archive struct {
	db      *gorm.DB
	closeFn func() error
}

// Open connects to Postgres through a pgx pool and migrates the schema.
func Open(ctx context.Context, dsn string) (*Archive, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("open pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	sqlDB := stdlib.OpenDBFromPool(pool)

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("open gorm: %w", err)
	}

	a, err := New(ctx, db)
	if err != nil {
		pool.Close()
		return nil, err
	}
	a.closeFn = func() error {
		err := sqlDB.Close()
		pool.Close()
		return err
	}
	return a, nil
}

// New wraps an existing gorm handle of any dialect.
func New(ctx context.Context, db *gorm.DB) (*Archive, error) {
	if err := db.WithContext(ctx).AutoMigrate(&MatchRecord{}, &PlayerCareer{}); err != nil {
		return nil, fmt.Errorf("migrate archive: %w", err)
	}
	return &Archive{db: db}, nil
}

// Archive stores the match once. Career totals only move when the match record is new,
// so a retried archive never double counts.
func (a *Archive) Archive(ctx context.Context, r Record) error {
	stats, err := json.Marshal(r.State.PlayerStats)
	if err != nil {
		return fmt.Errorf("encode player stats: %w", err)
	}
	rec := MatchRecord{
		MatchID:    r.MatchID,
		TeamAName:  r.State.TeamA.Name,
		TeamBName:  r.State.TeamB.Name,
		TeamAScore: r.State.TeamA.Score,
		TeamBScore: r.State.TeamB.Score,
		Winner:     r.Result.WinnerName,
		Raids:      r.State.RaidNumber - 1,
		Stats:      stats,
		EndedAt:    r.EndedAt,
	}

	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rec)
		if res.Error != nil {
			return fmt.Errorf("insert match %s: %w", r.MatchID, res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		careers := make([]PlayerCareer, 0, len(r.State.PlayerStats))
		for id, st := range r.State.PlayerStats {
			careers = append(careers, PlayerCareer{
				PlayerID:      id,
				Name:          st.Name,
				TotalPoints:   st.TotalPoints,
				RaidPoints:    st.RaidPoints,
				DefencePoints: st.DefencePoints,
				Matches:       1,
			})
		}
		if len(careers) == 0 {
			return nil
		}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "player_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"name":           gorm.Expr("excluded.name"),
				"total_points":   gorm.Expr("player_careers.total_points + excluded.total_points"),
				"raid_points":    gorm.Expr("player_careers.raid_points + excluded.raid_points"),
				"defence_points": gorm.Expr("player_careers.defence_points + excluded.defence_points"),
				"matches":        gorm.Expr("player_careers.matches + 1"),
			}),
		}).Create(&careers).Error
		if err != nil {
			return fmt.Errorf("update careers for %s: %w", r.MatchID, err)
		}
		return nil
	})
}

func (a *Archive) Match(ctx context.Context, matchID string) (MatchRecord, error) {
	var rec MatchRecord
	err := a.db.WithContext(ctx).First(&rec, "match_id = ?", matchID).Error
	return rec, err
}

func (a *Archive) Career(ctx context.Context, playerID string) (PlayerCareer, error) {
	var c PlayerCareer
	err := a.db.WithContext(ctx).First(&c, "player_id = ?", playerID).Error
	return c, err
}

func (a *Archive) Close() error {
	var err error
	if a.closeFn != nil {
		err = multierr.Append(err, a.closeFn())
	}
	return err
}
