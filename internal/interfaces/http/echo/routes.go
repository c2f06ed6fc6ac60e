package echo

import e "github.com/labstack/echo/v4"

func RegisterRoutes(server *e.Echo, importHandler *ImportHandler, exportHandler *ExportHandler) {
	server.POST("/api/v1/imports/:resource", importHandler.CreateImport)
	server.GET("/api/v1/imports/:id", importHandler.GetImport)

	server.POST("/api/v1/exports/:resource", exportHandler.CreateExport)
	server.GET("/api/v1/exports/:resource/stream", exportHandler.StreamExport)
	server.GET("/api/v1/exports/:id", exportHandler.GetExport)

	server.GET("/downloads/:file", exportHandler.Download)
}
