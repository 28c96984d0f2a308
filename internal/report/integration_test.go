package report

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/rteval-parser/internal/database"
	"github.com/JonMunkholm/rteval-parser/internal/queue"
	"github.com/JonMunkholm/rteval-parser/internal/registration"
)

const fullReport = `<rtevalsqldata>
  <sqldata table="systems" key="syskey">
    <fields><field fid="0">sysid</field><field fid="1">dmidata</field></fields>
    <records><record>
      <value fid="0" hash="sha1">HOSTNAME_PLACEHOLDER-serial</value>
      <value fid="1" type="xmlblob"><DMIinfo><BIOS Vendor="ACME"/></DMIinfo></value>
    </record></records>
  </sqldata>
  <sqldata table="systems_hostname">
    <fields><field fid="0">syskey</field><field fid="1">hostname</field><field fid="2">ipaddr</field></fields>
    <records><record>
      <value fid="0" param="syskey"/><value fid="1">HOSTNAME_PLACEHOLDER</value><value fid="2">192.168.1.10</value>
    </record></records>
  </sqldata>
  <sqldata table="rtevalruns" key="rterid">
    <fields>
      <field fid="0">submid</field><field fid="1">syskey</field><field fid="2">kernel_ver</field>
      <field fid="3">kernel_rt</field><field fid="4">arch</field><field fid="5">run_start</field>
      <field fid="6">run_duration</field><field fid="7">load_avg</field><field fid="8">version</field>
      <field fid="9">report_filename</field>
    </fields>
    <records><record>
      <value fid="0" param="submid"/><value fid="1" param="syskey"/><value fid="2">6.6.0-rt15</value>
      <value fid="3">true</value><value fid="4">x86_64</value><value fid="5">2024-05-01 10:00:00+00</value>
      <value fid="6">3600</value><value fid="7">2.5</value><value fid="8">3.7</value>
      <value fid="9" param="report_filename"/>
    </record></records>
  </sqldata>
  <sqldata table="rtevalruns_details">
    <fields><field fid="0">rterid</field><field fid="1">annotation</field><field fid="2">xmldata</field></fields>
    <records><record>
      <value fid="0" param="rterid"/><value fid="1">nightly</value>
      <value fid="2" type="xmlblob"><rteval version="3.7"/></value>
    </record></records>
  </sqldata>
  <sqldata table="cyclic_statistics" key="cstid">
    <fields>
      <field fid="0">rterid</field><field fid="1">num_samples</field><field fid="2">lat_min</field>
      <field fid="3">lat_max</field><field fid="4">lat_mean</field><field fid="5">mode</field>
      <field fid="6">range</field><field fid="7">median</field><field fid="8">stddev</field>
    </fields>
    <records><record>
      <value fid="0" param="rterid"/><value fid="1">2</value><value fid="2">3</value>
      <value fid="3">5</value><value fid="4">4</value><value fid="5">3</value>
      <value fid="6">2</value><value fid="7">4</value><value fid="8">1</value>
    </record></records>
  </sqldata>
  <sqldata table="cyclic_rawdata">
    <fields><field fid="0">rterid</field><field fid="1">cpu_num</field><field fid="2">sampleseq</field><field fid="3">latency</field></fields>
    <records>
      <record><value fid="0" param="rterid"/><value fid="1">0</value><value fid="2">1</value><value fid="3">3</value></record>
      <record><value fid="0" param="rterid"/><value fid="1">0</value><value fid="2">2</value><value fid="3">5</value></record>
    </records>
  </sqldata>
</rtevalsqldata>`

func writeReport(t *testing.T, dir, name, hostname string) {
	t.Helper()
	doc := strings.ReplaceAll(fullReport, "HOSTNAME_PLACEHOLDER", hostname)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(doc), 0o600))
}

func count(t *testing.T, pool *pgxpool.Pool, table string) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(), "SELECT count(*) FROM "+table).Scan(&n))
	return n
}

func TestIntegration_ProcessReports(t *testing.T) {
	database.WithTestDB(t, func(pool *pgxpool.Pool) {
		ctx := context.Background()
		dir := t.TempDir()
		writeReport(t, dir, "a.xml", "rt-node1")
		writeReport(t, dir, "b.xml", "rt-node1")

		p := &registration.Pipeline{Opener: &Opener{Dir: dir, MaxFileSize: 1 << 20}}

		conn, err := pool.Acquire(ctx)
		require.NoError(t, err)
		defer conn.Release()

		for _, file := range []string{"a.xml", "b.xml"} {
			_, err := queue.Enqueue(ctx, pool, file)
			require.NoError(t, err)

			job, err := queue.Claim(ctx, pool)
			require.NoError(t, err)
			require.NotNil(t, job)

			status, err := p.Process(ctx, conn.Conn(), job)
			require.NoError(t, err)
			assert.Equal(t, queue.Success, status, file)
		}

		// The same system submitted twice is stored once.
		assert.Equal(t, 1, count(t, pool, "systems"))
		assert.Equal(t, 1, count(t, pool, "systems_hostname"))
		assert.Equal(t, 2, count(t, pool, "rtevalruns"))
		assert.Equal(t, 2, count(t, pool, "rtevalruns_details"))
		assert.Equal(t, 4, count(t, pool, "cyclic_rawdata"))

		var filename string
		require.NoError(t, pool.QueryRow(ctx,
			`SELECT report_filename FROM rtevalruns ORDER BY rterid DESC LIMIT 1`).Scan(&filename))
		assert.Equal(t, "b.xml", filename)
	})
}

func TestIntegration_InvalidReport(t *testing.T) {
	database.WithTestDB(t, func(pool *pgxpool.Pool) {
		ctx := context.Background()
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.xml"), []byte("<rtevalsqldata>"), 0o600))

		submID, err := queue.Enqueue(ctx, pool, "bad.xml")
		require.NoError(t, err)
		job, err := queue.Claim(ctx, pool)
		require.NoError(t, err)

		conn, err := pool.Acquire(ctx)
		require.NoError(t, err)
		defer conn.Release()

		p := &registration.Pipeline{Opener: &Opener{Dir: dir, MaxFileSize: 1 << 20}}
		status, err := p.Process(ctx, conn.Conn(), job)
		require.NoError(t, err)
		assert.Equal(t, queue.InvalidInput, status)

		e, err := queue.Get(ctx, pool, submID)
		require.NoError(t, err)
		assert.Equal(t, queue.InvalidInput, e.Status)
		assert.Zero(t, count(t, pool, "systems"))
	})
}
