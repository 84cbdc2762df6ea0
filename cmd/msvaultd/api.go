package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/iov-one/msvault"
	"github.com/iov-one/msvault/errors"
	"github.com/iov-one/msvault/x/metatx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendermint/tendermint/libs/log"
	"github.com/valyala/fasthttp"
)

// keepAlive is how often an idle event stream receives a comment line.
const keepAlive = 15 * time.Second

type api struct {
	coordinator *metatx.Coordinator
	logger      log.Logger
}

func newApp(coordinator *metatx.Coordinator, logger log.Logger) *fiber.App {
	a := &api{coordinator: coordinator, logger: logger}
	app := fiber.New(fiber.Config{
		AppName:               "msvaultd",
		ErrorHandler:          a.handleError,
		DisableStartupMessage: true,
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	v := app.Group("/v1/vaults/:vault")
	v.Get("/", a.vaultState)
	v.Get("/events", a.events)
	v.Get("/transactions", a.listTransactions)
	v.Post("/transactions", a.propose)
	v.Get("/transactions/:id", a.status)
	v.Post("/transactions/:id/confirm", a.confirm)
	v.Post("/transactions/:id/revoke", a.revoke)
	v.Post("/transactions/:id/amend", a.amend)
	v.Post("/transactions/:id/execute", a.execute)

	app.Use(func(c *fiber.Ctx) error {
		return errors.Wrapf(errors.ErrNotFound, "no route %s %s", c.Method(), c.Path())
	})
	return app
}

func (a *api) vaultState(c *fiber.Ctx) error {
	vaultAddr, err := vaultParam(c)
	if err != nil {
		return err
	}
	st, err := a.coordinator.VaultState(c.UserContext(), vaultAddr)
	if err != nil {
		return err
	}
	return c.JSON(st)
}

func (a *api) listTransactions(c *fiber.Ctx) error {
	f, err := filterParams(c)
	if err != nil {
		return err
	}
	txs, err := a.coordinator.List(c.UserContext(), f)
	if err != nil {
		return err
	}
	return c.JSON(newTransactionViews(txs))
}

func (a *api) propose(c *fiber.Ctx) error {
	vaultAddr, err := vaultParam(c)
	if err != nil {
		return err
	}
	var req proposeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	creator, err := addressField("creator", req.Creator)
	if err != nil {
		return err
	}
	msg := metatx.ProposeMsg{Name: req.Name, Calldata: req.Calldata, Creator: creator}

	if len(req.Signature) == 0 {
		tx, err := a.coordinator.Propose(c.UserContext(), vaultAddr, msg)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(newTransactionView(tx))
	}
	tx, err := a.coordinator.ProposeAndConfirm(c.UserContext(), vaultAddr, msg, req.Signature)
	if err != nil {
		if tx == nil {
			return err
		}
		// Created but not confirmed.
		view := newTransactionView(tx)
		return c.Status(httpStatus(err)).JSON(fiber.Map{
			"error":       errorBody(err),
			"transaction": view,
		})
	}
	return c.Status(fiber.StatusCreated).JSON(newTransactionView(tx))
}

func (a *api) status(c *fiber.Ctx) error {
	id, err := a.transactionParam(c)
	if err != nil {
		return err
	}
	var caller common.Address
	if raw := c.Query("caller"); raw != "" {
		if caller, err = addressField("caller", raw); err != nil {
			return err
		}
	}
	st, err := a.coordinator.Status(c.UserContext(), id, caller)
	if err != nil {
		return err
	}
	return c.JSON(newStatusView(st))
}

func (a *api) confirm(c *fiber.Ctx) error {
	id, err := a.transactionParam(c)
	if err != nil {
		return err
	}
	var req confirmRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	signer, err := addressField("signer", req.Signer)
	if err != nil {
		return err
	}
	tx, err := a.coordinator.Confirm(c.UserContext(), id, signer, req.Signature)
	if err != nil {
		return err
	}
	return c.JSON(newTransactionView(tx))
}

func (a *api) revoke(c *fiber.Ctx) error {
	id, err := a.transactionParam(c)
	if err != nil {
		return err
	}
	var req revokeRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	signer, err := addressField("signer", req.Signer)
	if err != nil {
		return err
	}
	tx, err := a.coordinator.Revoke(c.UserContext(), id, signer)
	if err != nil {
		return err
	}
	return c.JSON(newTransactionView(tx))
}

func (a *api) amend(c *fiber.Ctx) error {
	id, err := a.transactionParam(c)
	if err != nil {
		return err
	}
	var req amendRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	caller, err := addressField("caller", req.Caller)
	if err != nil {
		return err
	}
	tx, err := a.coordinator.Amend(c.UserContext(), id, caller, req.Calldata)
	if err != nil {
		return err
	}
	return c.JSON(newTransactionView(tx))
}

func (a *api) execute(c *fiber.Ctx) error {
	id, err := a.transactionParam(c)
	if err != nil {
		return err
	}
	var req callerRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	caller, err := addressField("caller", req.Caller)
	if err != nil {
		return err
	}
	tx, receipt, err := a.coordinator.Execute(c.UserContext(), id, caller)
	if err != nil {
		if receipt == nil {
			return err
		}
		// Executed on chain, the record is behind.
		return c.Status(httpStatus(err)).JSON(fiber.Map{
			"error":   errorBody(err),
			"receipt": receipt,
		})
	}
	view := newTransactionView(tx)
	return c.JSON(executionView{Transaction: &view, Receipt: receipt})
}

// events streams changes of the vault transactions as server sent events.
func (a *api) events(c *fiber.Ctx) error {
	f, err := filterParams(c)
	if err != nil {
		return err
	}
	// The stream outlives the handler, the request context cannot be used.
	ctx, cancel := context.WithCancel(context.Background())
	events, err := a.coordinator.Subscribe(ctx, f)
	if err != nil {
		cancel()
		return err
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Status(fiber.StatusOK).Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		ticker := time.NewTicker(keepAlive)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					// Dropped by the store, the client reconnects.
					return
				}
				if err := writeEvent(w, ev); err != nil {
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": keepalive\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))
	return nil
}

func writeEvent(w *bufio.Writer, ev metatx.Event) error {
	raw, err := json.Marshal(eventView{Kind: ev.Kind, Transaction: newTransactionView(ev.Transaction)})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, raw); err != nil {
		return err
	}
	return w.Flush()
}

func (a *api) handleError(c *fiber.Ctx, err error) error {
	code := httpStatus(err)
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}
	if code >= http.StatusInternalServerError {
		a.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "status", code, "err", err)
	} else {
		a.logger.Debug("request rejected", "method", c.Method(), "path", c.Path(), "status", code, "err", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": errorBody(err)})
}

func errorBody(err error) fiber.Map {
	return fiber.Map{
		"code":    errors.Code(err),
		"message": err.Error(),
	}
}

// httpStatus maps the error taxonomy to response codes.
func httpStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.ErrNotFound.Is(err):
		return http.StatusNotFound
	case errors.ErrMalformedPayload.Is(err),
		errors.ErrInvalidParams.Is(err),
		errors.ErrInvalidSignatureFormat.Is(err),
		errors.ErrInvalidSignature.Is(err),
		errors.ErrDuplicateSigner.Is(err),
		errors.ErrEmptySignatureSet.Is(err),
		errors.ErrInput.Is(err),
		errors.ErrEmpty.Is(err):
		return http.StatusBadRequest
	case errors.ErrNotAnOwner.Is(err),
		errors.ErrUnauthorized.Is(err):
		return http.StatusForbidden
	case errors.ErrAlreadyConfirmed.Is(err),
		errors.ErrNotConfirmed.Is(err),
		errors.ErrConflict.Is(err),
		errors.ErrNotPending.Is(err),
		errors.ErrQuorum.Is(err),
		errors.ErrImmutableCalldata.Is(err),
		errors.ErrCannotBeModified.Is(err),
		errors.ErrState.Is(err):
		return http.StatusConflict
	case errors.ErrExecutionFailed.Is(err),
		errors.ErrAlreadyExecuted.Is(err),
		errors.ErrHashMismatch.Is(err):
		return http.StatusBadGateway
	case errors.ErrDatabase.Is(err):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func parseBody(c *fiber.Ctx, dest interface{}) error {
	if err := c.BodyParser(dest); err != nil {
		return errors.Wrapf(errors.ErrInput, "request body: %s", err)
	}
	return nil
}

func vaultParam(c *fiber.Ctx) (common.Address, error) {
	return addressField("vault", c.Params("vault"))
}

func addressField(name, raw string) (common.Address, error) {
	if raw == "" {
		return common.Address{}, errors.Wrapf(errors.ErrEmpty, "missing %s", name)
	}
	a, err := msvault.ParseAddress(raw)
	if err != nil {
		return a, errors.Wrap(err, name)
	}
	return a, nil
}

// transactionParam returns the ID of the addressed transaction. A transaction
// of another vault is not found.
func (a *api) transactionParam(c *fiber.Ctx) (uint64, error) {
	vaultAddr, err := vaultParam(c)
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.Wrapf(errors.ErrInput, "invalid transaction id %q", c.Params("id"))
	}
	tx, err := a.coordinator.Get(c.UserContext(), id)
	if err != nil {
		return 0, err
	}
	if tx.Vault != vaultAddr {
		return 0, errors.Wrapf(errors.ErrNotFound, "transaction %d of vault %s", id, vaultAddr.Hex())
	}
	return id, nil
}

// filterParams reads the vault and the optional state filter. The state can
// be given either as state=pending|executed or as executed=true|false.
func filterParams(c *fiber.Ctx) (metatx.Filter, error) {
	vaultAddr, err := vaultParam(c)
	if err != nil {
		return metatx.Filter{}, err
	}
	f := metatx.Filter{Vault: vaultAddr, State: metatx.State(c.Query("state"))}
	if raw := c.Query("executed"); raw != "" {
		executed, err := strconv.ParseBool(raw)
		if err != nil {
			return f, errors.Wrapf(errors.ErrInput, "executed %q", raw)
		}
		f.State = metatx.StatePending
		if executed {
			f.State = metatx.StateExecuted
		}
	}
	return f, f.State.Validate()
}
