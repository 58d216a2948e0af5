package feel

func registerContextBuiltins(r *Registry) {
	r.define("get value", []string{"m", "key"}, 2, func(args []Value) (Value, error) {
		c, ok := args[0].(*Context)
		if !ok {
			return Null, nil
		}
		key, ok := argString(args, 1)
		if !ok {
			return Null, nil
		}
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		return Null, nil
	})

	r.define("get entries", []string{"m"}, 1, func(args []Value) (Value, error) {
		c, ok := args[0].(*Context)
		if !ok {
			return Null, nil
		}
		out := make([]Value, 0, c.Len())
		for _, k := range c.keys {
			out = append(out, NewContextBuilder().Set("key", String(k)).Set("value", c.vals[k]).Build())
		}
		return listOf(out), nil
	})

	r.define("context put", []string{"context", "key", "value"}, 3, func(args []Value) (Value, error) {
		c, ok := args[0].(*Context)
		if !ok {
			return Null, nil
		}
		key, ok := argString(args, 1)
		if !ok {
			return Null, nil
		}
		return c.With(key, args[2]), nil
	})
}
