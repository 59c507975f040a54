// Package sdk reconfigures database connectivity at runtime.
//
// A configuration describes one logical data source: a plain list of pool
// definitions, or lists per high availability zone. A Processor post
// processes a configuration, validates it and activates it on a
// datasource.DynamicDataSource. Activation builds the pools in an isolated
// unit, swaps the new delegate in and disposes the previous unit after a
// grace delay.
//
// Configurations are usually read from host properties:
//
//	proc := sdk.NewProcessor(sdk.WithEnvironment(env.New(v)))
//	defer proc.Close()
//
//	ds, err := proc.Load(ctx, config.PropertyName("orders"))
//	if err != nil {
//		return err
//	}
//
//	conn, err := ds.Conn(ctx)
package sdk
