package schema

// Table names written by the registration pipeline.
const (
	TableSystems           = "systems"
	TableSystemsHostname   = "systems_hostname"
	TableRtevalRuns        = "rtevalruns"
	TableRtevalRunsDetails = "rtevalruns_details"
	TableCyclicStatistics  = "cyclic_statistics"
	TableCyclicRawdata     = "cyclic_rawdata"
)

func init() {
	Register(Table{
		Name:    TableSystems,
		Columns: []string{"sysid", "dmidata"},
		Key:     "syskey",
	})
	Register(Table{
		Name:    TableSystemsHostname,
		Columns: []string{"syskey", "hostname", "ipaddr"},
	})
	Register(Table{
		Name: TableRtevalRuns,
		Columns: []string{
			"submid", "syskey", "kernel_ver", "kernel_rt", "arch",
			"run_start", "run_duration", "load_avg", "version", "report_filename",
		},
		Key: "rterid",
	})
	Register(Table{
		Name:    TableRtevalRunsDetails,
		Columns: []string{"rterid", "annotation", "num_cpu_cores", "num_cpu_sockets", "xmldata"},
	})
	Register(Table{
		Name: TableCyclicStatistics,
		Columns: []string{
			"rterid", "coreid", "priority", "num_samples", "lat_min", "lat_max",
			"lat_mean", "mode", "range", "median", "stddev",
		},
		Key: "cstid",
	})
	Register(Table{
		Name:    TableCyclicRawdata,
		Columns: []string{"rterid", "cpu_num", "sampleseq", "latency"},
	})
}
