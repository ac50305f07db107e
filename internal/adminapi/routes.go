package adminapi

// InitRouter registers every admin API route. Call after webserver.Init.
func InitRouter() {
	registerControllerRoutes()
	registerDeviceRoutes()
	registerScheduleRoutes()
	registerJobRoutes()
	registerSystemRoutes()
}
