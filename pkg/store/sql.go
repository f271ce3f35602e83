package store

import (
	"fmt"
	"strings"
)

// TableName returns the table of a product family, e.g. "meta__togomi".
func TableName(prefix, family string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(family) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return prefix + "__" + sb.String()
}

func placeholders(from, n int) string {
	p := make([]string, n)
	for i := range p {
		p[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(p, ",")
}

// MetaSelectSQL finds a stored product by name.
func MetaSelectSQL(family string) string {
	return fmt.Sprintf("SELECT pk_meta FROM %s WHERE name=$1", TableName("meta", family))
}

// MetaInsertSQL inserts a product header and returns its key.
func MetaInsertSQL(family string) string {
	return fmt.Sprintf("INSERT INTO %s (name,orbit,date_time_start,date_time_stop,proc_time,soft_version,ingest_id) VALUES (%s) RETURNING pk_meta",
		TableName("meta", family), placeholders(1, 7))
}

// DeleteSQL removes a stored product. Tiles and clusters go with it
// through ON DELETE CASCADE.
func DeleteSQL(family string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE pk_meta=$1", TableName("meta", family))
}

// TileInsertSQL inserts one ground pixel. The arguments are fk_meta,
// date_time, latitude, longitude, the columns in order and the EWKT
// footprint.
func TileInsertSQL(family string, columns []string) string {
	names := append([]string{"fk_meta", "date_time", "latitude", "longitude"}, columns...)
	return fmt.Sprintf("INSERT INTO %s (%s,pixel) VALUES (%s,ST_GeomFromEWKT($%d))",
		TableName("tile", family), strings.Join(names, ","), placeholders(1, len(names)), len(names)+1)
}

var clusterColumns = []string{
	"fk_meta", "date_time", "state_id", "clus_id", "channel", "coaddf", "pet",
	"num_obs", "pixel_ids", "pixel_val", "pixel_err",
}

// ClusterInsertSQL inserts one calibrated cluster of a state execution.
// ClusterArgs gives the arguments.
func ClusterInsertSQL(family string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		TableName("cluster", family), strings.Join(clusterColumns, ","), placeholders(1, len(clusterColumns)))
}

func metaDDL(meta string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  pk_meta serial PRIMARY KEY,
  name varchar(128) UNIQUE NOT NULL,
  orbit integer NOT NULL,
  date_time_start timestamp,
  date_time_stop timestamp,
  proc_time timestamp,
  soft_version varchar(32),
  ingest_id uuid,
  receive_date timestamp DEFAULT now()
)`, meta)
}

// SchemaSQL returns the DDL of the tables of a derived product family.
func SchemaSQL(family string, columns []string) []string {
	meta, tile := TableName("meta", family), TableName("tile", family)
	var cols strings.Builder
	for _, c := range columns {
		fmt.Fprintf(&cols, ",\n  %s real", c)
	}
	return []string{
		"CREATE EXTENSION IF NOT EXISTS postgis",
		metaDDL(meta),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  pk_tile bigserial PRIMARY KEY,
  fk_meta integer NOT NULL REFERENCES %s (pk_meta) ON DELETE CASCADE,
  date_time timestamp NOT NULL,
  latitude real,
  longitude real%s,
  pixel geometry(Polygon,4326)
)`, tile, meta, cols.String()),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_pixel_idx ON %s USING GIST (pixel)", tile, tile),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_date_time_idx ON %s (date_time)", tile, tile),
	}
}

// RecordSchemaSQL returns the DDL of the tables of a Level-1c product
// family: the product headers and one row per calibrated cluster.
func RecordSchemaSQL(family string) []string {
	meta, cluster := TableName("meta", family), TableName("cluster", family)
	return []string{
		metaDDL(meta),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
  pk_cluster bigserial PRIMARY KEY,
  fk_meta integer NOT NULL REFERENCES %s (pk_meta) ON DELETE CASCADE,
  date_time timestamp NOT NULL,
  state_id smallint NOT NULL,
  clus_id smallint NOT NULL,
  channel smallint NOT NULL,
  coaddf smallint,
  pet real,
  num_obs integer,
  pixel_ids integer[],
  pixel_val double precision[],
  pixel_err double precision[]
)`, cluster, meta),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s_date_time_idx ON %s (date_time, state_id)", cluster, cluster),
	}
}
