package main

import (
	"Fly8Backend/internal/bootstrap"
	pkg "Fly8Backend/pkg/routes"

	"go.uber.org/fx"
)

func main() {
	bootstrap.Loadenv()
	app := fx.New(
		fx.WithLogger(bootstrap.FxLogger),
		pkg.EchoModules,
	)

	app.Run()
}
