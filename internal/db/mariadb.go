package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// ManifestRecord is one manifest line mirrored into the catalog, with the
// measurements of its staged audio.
type ManifestRecord struct {
	ID                int64     `json:"id"`
	RunID             string    `json:"run_id"`
	Manifest          string    `json:"manifest"`
	DatasetID         string    `json:"dataset_id"`
	SampleKey         string    `json:"sample_key"`
	SrcLang           string    `json:"src_lang"`
	TgtLang           string    `json:"tgt_lang"`
	SrcAudio          string    `json:"src_audio"`
	SrcRef            string    `json:"src_ref"`
	TgtRef            string    `json:"tgt_ref"`
	BenchmarkMetadata string    `json:"benchmark_metadata"`
	FileHash          string    `json:"file_hash"`
	DurationSec       float64   `json:"duration_sec"`
	SampleRate        int       `json:"sample_rate"`
	Channels          int       `json:"channels"`
	BitDepth          int       `json:"bit_depth"`
	FileSize          int64     `json:"file_size"`
	SNRWada           float64   `json:"snr_wada"`
	NoiseLevel        string    `json:"noise_level"`
	RMSDB             float64   `json:"rms_db"`
	PeakDB            float64   `json:"peak_db"`
	AudioMetadata     string    `json:"audio_metadata"`
	CreatedAt         time.Time `json:"created_at"`
}

type DatasetStats struct {
	DatasetID  string  `json:"dataset_id"`
	Samples    int64   `json:"samples"`
	WithAudio  int64   `json:"with_audio"`
	TotalHours float64 `json:"total_hours"`
	AvgSNRWada float64 `json:"avg_snr_wada"`
	NoisyShare float64 `json:"noisy_share"`
}

type DB struct {
	conn *sql.DB
}

func New(host string, port int, user, password, dbname string) (*DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=true",
		user, password, host, port, dbname)

	conn, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}

	conn.SetMaxOpenConns(50)
	conn.SetMaxIdleConns(10)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	return &DB{conn: conn}, nil
}

func (db *DB) Close() error {
	return db.conn.Close()
}

const createTable = `
CREATE TABLE IF NOT EXISTS manifest_records (
	id                 BIGINT AUTO_INCREMENT PRIMARY KEY,
	run_id             CHAR(36)     NOT NULL,
	manifest           VARCHAR(512) NOT NULL,
	dataset_id         VARCHAR(128) NOT NULL,
	sample_key         VARCHAR(255) NOT NULL,
	src_lang           VARCHAR(16)  NOT NULL,
	tgt_lang           VARCHAR(16),
	src_audio          VARCHAR(1024),
	src_ref            MEDIUMTEXT,
	tgt_ref            MEDIUMTEXT,
	benchmark_metadata JSON,
	file_hash          CHAR(32),
	duration_sec       DOUBLE,
	sample_rate        INT,
	channels           INT,
	bit_depth          INT,
	file_size          BIGINT,
	snr_wada           DOUBLE,
	noise_level        VARCHAR(16),
	rms_db             DOUBLE,
	peak_db            DOUBLE,
	audio_metadata     JSON,
	created_at         TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	UNIQUE KEY uq_sample (dataset_id, sample_key),
	KEY idx_hash (file_hash)
) CHARACTER SET utf8mb4`

func (db *DB) CreateTable() error {
	_, err := db.conn.Exec(createTable)
	return err
}

// CatalogKey identifies a record across manifests.
func CatalogKey(datasetID, sampleKey string) string {
	return datasetID + "\x00" + sampleKey
}

// GetAllKeys loads every (dataset_id, sample_key) pair already stored so a
// sync can skip them without a query per record.
func (db *DB) GetAllKeys() (map[string]bool, error) {
	rows, err := db.conn.Query("SELECT dataset_id, sample_key FROM manifest_records")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make(map[string]bool)
	for rows.Next() {
		var ds, key string
		if err := rows.Scan(&ds, &key); err != nil {
			return nil, err
		}
		keys[CatalogKey(ds, key)] = true
	}
	return keys, rows.Err()
}

// ExistsByHash reports whether the same audio is already catalogued for
// datasetID under another sample.
func (db *DB) ExistsByHash(datasetID, hash string) (bool, error) {
	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM manifest_records WHERE dataset_id = ? AND file_hash = ?",
		datasetID, hash).Scan(&count)
	return count > 0, err
}

func (db *DB) Insert(r *ManifestRecord) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO manifest_records
		(run_id, manifest, dataset_id, sample_key, src_lang, tgt_lang,
		 src_audio, src_ref, tgt_ref, benchmark_metadata,
		 file_hash, duration_sec, sample_rate, channels, bit_depth, file_size,
		 snr_wada, noise_level, rms_db, peak_db, audio_metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Manifest, r.DatasetID, r.SampleKey, r.SrcLang, nullable(r.TgtLang),
		nullable(r.SrcAudio), nullable(r.SrcRef), nullable(r.TgtRef), r.BenchmarkMetadata,
		nullable(r.FileHash), r.DurationSec, r.SampleRate, r.Channels, r.BitDepth, r.FileSize,
		r.SNRWada, nullable(r.NoiseLevel), r.RMSDB, r.PeakDB, nullable(r.AudioMetadata))
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// Stats summarizes the catalog per dataset.
func (db *DB) Stats() ([]DatasetStats, error) {
	rows, err := db.conn.Query(`
		SELECT
			dataset_id,
			COUNT(*),
			COALESCE(SUM(CASE WHEN file_hash IS NOT NULL THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(duration_sec), 0) / 3600,
			COALESCE(AVG(CASE WHEN file_hash IS NOT NULL THEN snr_wada END), 0),
			COALESCE(AVG(CASE WHEN noise_level IN ('high', 'very_high') THEN 1 ELSE 0 END), 0)
		FROM manifest_records
		GROUP BY dataset_id
		ORDER BY dataset_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []DatasetStats
	for rows.Next() {
		var s DatasetStats
		if err := rows.Scan(&s.DatasetID, &s.Samples, &s.WithAudio, &s.TotalHours, &s.AvgSNRWada, &s.NoisyShare); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
