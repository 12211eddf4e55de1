package metrics

const (
	ServerPktsReceivedN = "probed_server_pkts_received_total"
	ServerPktsReceivedH = "Number of probe packets received"

	ServerPktsReflectedN = "probed_server_pkts_reflected_total"
	ServerPktsReflectedH = "Number of probe packets reflected back to the prober"

	ServerTstampErrsN = "probed_server_tstamp_errors_total"
	ServerTstampErrsH = "Number of probe exchanges without a usable timestamp"

	ServerCtrlConnsN = "probed_server_control_connections"
	ServerCtrlConnsH = "Number of open control channel connections"

	ClientRoundsN = "probed_client_rounds_total"
	ClientRoundsH = "Number of probe rounds performed"

	ClientRoundErrsN = "probed_client_round_errors_total"
	ClientRoundErrsH = "Number of probe rounds that failed"
)
