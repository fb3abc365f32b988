package version

// Populated via -ldflags at release build time.
var (
	AppName   = "Server Muse"
	AppGoName = "server-muse"
	Version   = "dev"
)
