// Package console implements the operator's interactive stdin loop.
//
//	con := console.New(os.Stdin, os.Stdout, gw, log)
//	if err := con.Run(ctx); errors.Is(err, console.ErrQuit) {
//	    stop()
//	}
package console
