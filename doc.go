/*
Package nextrush implements a general-purpose HTTP application framework.

It accepts inbound HTTP/1.1 requests, dispatches them through a
user-configurable middleware chain to a handler matched on method and path,
and supports realtime WebSocket upgrades on the same listening socket.

Router

A router is the most important component of the framework. Registering a
route requires at least a method, a path and a `Handler`:

	app := nextrush.New()
	app.GET("/users/:id/posts/*", func(c *nextrush.Context) error {
		id := c.Params["id"]
		rest := c.Params["*"]
		return c.JSON(map[string]string{"id": id, "rest": rest})
	})
	app.ListenAndServe()

The path may consist of STATIC segments, regex-bearing segments
("(pattern)"), PARAM segments (":name", matching exactly one path component)
and an ANY segment ("*", consuming the remainder of the path). Segments are
matched in that precedence order at every node of the route tree.

Middleware

A middleware is a function that takes a `*Context` and a `Next` and decides
whether, and in what order, to call the rest of the chain:

	app.Use(func(c *nextrush.Context, next nextrush.Next) error {
		start := time.Now()
		err := next()
		c.App.Logger.Infof("request took %s", time.Since(start))
		return err
	})
*/
package nextrush
