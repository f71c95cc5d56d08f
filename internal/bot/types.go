package bot

import (
	telebot "gopkg.in/telebot.v3"
)

// Handler processes one telegram update.
type Handler func(c telebot.Context) error

// Middleware wraps handlers with additional behavior.
type Middleware func(Handler) Handler

// Chain applies middlewares right to left so the first one listed runs
// outermost.
func Chain(h Handler, middlewares ...Middleware) Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
