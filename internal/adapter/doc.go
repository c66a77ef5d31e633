/*
Package adapter assembles a running RouteFS mount from a source URI and a
configuration.

Two source schemes are understood:

	file:///srv/data              # mirror a host directory
	s3://bucket-name              # serve a bucket
	s3://bucket-name/path/prefix  # serve the keys under a prefix

Start runs these steps in order and undoes the completed ones if a later
step fails:

 1. logging from the global configuration
 2. the metrics collector, serving HTTP when enabled
 3. the filesystem with its handler registrations from the source
 4. the platform mount at the mount point

Stop unmounts, releases every handle still open, closes the source and
stops the metrics server.

	a, err := adapter.New(ctx, "s3://production-data", "/mnt/data", cfg)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Stop(ctx)
	a.Wait()

Every adapter carries a random instance id that is attached to its log
entries.
*/
package adapter
