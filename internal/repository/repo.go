package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/meloplay/meloplay/internal/music"
)

func NewRepo(db *sql.DB) *Repo { return &Repo{db: db} }

func (r *Repo) GetSettings(ctx context.Context) (*Settings, error) {
	row := r.db.QueryRowContext(ctx, `
	SELECT preferred_quality, volume, playlist_limit, auto_advance
	FROM settings WHERE id = 1`)

	var s Settings
	var quality string
	var autoAdvance int
	if err := row.Scan(&quality, &s.Volume, &s.PlaylistLimit, &autoAdvance); err != nil {
		return nil, err
	}
	s.PreferredQuality = music.Quality(quality)
	if !s.PreferredQuality.Valid() {
		s.PreferredQuality = music.QualityDefault
	}
	s.AutoAdvance = autoAdvance != 0
	return &s, nil
}

func (r *Repo) UpdateSettings(ctx context.Context, s *Settings) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE settings SET
		  preferred_quality=?,
		  volume=?,
		  playlist_limit=?,
		  auto_advance=?
		WHERE id=1`,
		string(s.PreferredQuality), s.Volume, s.PlaylistLimit, boolToInt(s.AutoAdvance),
	)
	return err
}

// SuccessRate implements the cross-source matcher's stats source. A
// provider with no recorded attempts reports known=false so the caller
// can rank it neutrally.
func (r *Repo) SuccessRate(ctx context.Context, providerName string) (float64, bool) {
	row := r.db.QueryRowContext(ctx,
		`SELECT success_count, failure_count FROM source_stats WHERE provider=?`, providerName)
	var stat SourceStat
	if err := row.Scan(&stat.SuccessCount, &stat.FailureCount); err != nil {
		return 0, false
	}
	if stat.SuccessCount+stat.FailureCount == 0 {
		return 0, false
	}
	return stat.Rate(), true
}

func (r *Repo) Record(ctx context.Context, providerName string, success bool) error {
	now := time.Now().Unix()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO source_stats(provider, success_count, failure_count, updated_at)
		VALUES (?,?,?,?)
		ON CONFLICT(provider) DO UPDATE SET
		  success_count = success_count + excluded.success_count,
		  failure_count = failure_count + excluded.failure_count,
		  updated_at = excluded.updated_at`,
		providerName, boolToInt(success), boolToInt(!success), now,
	)
	return err
}

func (r *Repo) ListSourceStats(ctx context.Context) ([]SourceStat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT provider, success_count, failure_count, updated_at FROM source_stats ORDER BY provider ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []SourceStat
	for rows.Next() {
		var s SourceStat
		if err := rows.Scan(&s.Provider, &s.SuccessCount, &s.FailureCount, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repo) AddFavorite(ctx context.Context, song music.Song) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO favorites(song_key, source, song_id, name, artists, album, pic_id, duration_ms, created_at)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		song.Key(), song.Source, song.ID, song.Name, joinArtists(song.Artists),
		song.Album, song.PicID, song.DurationMS, time.Now().Unix(),
	)
	return err
}

func (r *Repo) RemoveFavorite(ctx context.Context, songKey string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM favorites WHERE song_key=?`, songKey)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repo) FindFavorite(ctx context.Context, songKey string) (*Favorite, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, source, song_id, name, artists, album, pic_id, duration_ms, created_at
		FROM favorites WHERE song_key=?`, songKey)
	f, err := scanFavorite(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	return f, nil
}

func (r *Repo) ListFavorites(ctx context.Context) ([]Favorite, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source, song_id, name, artists, album, pic_id, duration_ms, created_at
		FROM favorites ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Favorite
	for rows.Next() {
		f, err := scanFavorite(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

func scanFavorite(scan func(dest ...any) error) (*Favorite, error) {
	var f Favorite
	var artists string
	if err := scan(
		&f.ID, &f.Song.Source, &f.Song.ID, &f.Song.Name, &artists,
		&f.Song.Album, &f.Song.PicID, &f.Song.DurationMS, &f.CreatedAt,
	); err != nil {
		return nil, err
	}
	f.Song.Artists = splitArtists(artists)
	return &f, nil
}

func (r *Repo) AddHistory(ctx context.Context, song music.Song) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO history(song_key, source, song_id, name, artists, played_at)
		VALUES (?,?,?,?,?,?)`,
		song.Key(), song.Source, song.ID, song.Name, joinArtists(song.Artists), time.Now().Unix(),
	)
	return err
}

func (r *Repo) ListHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, source, song_id, name, artists, played_at
		FROM history ORDER BY played_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		var artists string
		if err := rows.Scan(&h.ID, &h.Song.Source, &h.Song.ID, &h.Song.Name, &artists, &h.PlayedAt); err != nil {
			return nil, err
		}
		h.Song.Artists = splitArtists(artists)
		out = append(out, h)
	}
	return out, rows.Err()
}

func (r *Repo) PruneHistory(ctx context.Context, keep int) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM history WHERE id NOT IN (
		  SELECT id FROM history ORDER BY played_at DESC, id DESC LIMIT ?
		)`, keep)
	return err
}

func (r *Repo) CacheTouch(ctx context.Context, hash string, size int64, created bool) error {
	now := time.Now().Unix()
	if created {
		_, err := r.db.ExecContext(ctx, `INSERT OR REPLACE INTO file_cache(hash,bytes,accessed_at,created_at) VALUES (?,?,?,COALESCE((SELECT created_at FROM file_cache WHERE hash=?),?))`,
			hash, size, now, hash, now)
		return err
	}
	_, err := r.db.ExecContext(ctx, `UPDATE file_cache SET accessed_at=? WHERE hash=?`, now, hash)
	return err
}

func (r *Repo) CacheRemove(ctx context.Context, hash string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM file_cache WHERE hash=?`, hash)
	return err
}

func (r *Repo) CacheTotalBytes(ctx context.Context) (int64, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(bytes),0) FROM file_cache`)
	var v int64
	if err := row.Scan(&v); err != nil {
		return 0, err
	}
	return v, nil
}

func (r *Repo) CacheOldest(ctx context.Context) (string, error) {
	row := r.db.QueryRowContext(ctx, `SELECT hash FROM file_cache ORDER BY accessed_at ASC LIMIT 1`)
	var hash string
	if err := row.Scan(&hash); err != nil {
		return "", err
	}
	return hash, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
