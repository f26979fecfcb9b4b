package handler

// Route type
type Route string

const (
	// RouteGetLatest get the latest restore per snapshot of a namespace
	RouteGetLatest Route = "getLatest"
	// RouteGetRestores get all restores of a namespace
	RouteGetRestores Route = "getRestores"
	// RouteGetNamespaces get all indexed namespaces
	RouteGetNamespaces Route = "getNamespaces"
	// RouteGetIndex get the latest restores of all namespaces
	RouteGetIndex Route = "getIndex"
	// RouteGetTraffic summarize service traffic per revision
	RouteGetTraffic Route = "getTraffic"
	// RouteUpdate update repo
	RouteUpdate Route = "update"
	// RouteGetRepo get the whole raw restore collection
	RouteGetRepo Route = "getRepo"
)

const (
	sourceWebserver    = "webserver"
	sourceSocketServer = "socketserver"
)
