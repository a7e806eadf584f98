// Package di assembles a ready to use data service from a config.Config:
// the bun database for the configured driver, the zerolog logger and the
// service itself.
//
//	container, err := di.NewContainerFromFile("config.yaml")
//	if err != nil {
//		return err
//	}
//	defer container.Close(ctx)
//
//	rows, err := container.Service().SearchWithFilters(ctx, dataservice.Filters{"status": "active"}, "id", 0)
package di
