package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dexlend-labs/dexlend-hub/portal/actions"
	"github.com/dexlend-labs/dexlend-hub/portal/gateway"
	"github.com/dexlend-labs/dexlend-hub/portal/models"
	"github.com/dexlend-labs/dexlend-hub/portal/registry"
	"github.com/dexlend-labs/dexlend-hub/portal/units"
)

// Actions is the dispatcher surface the handlers call. Matched by
// *actions.Dispatcher; tests plug in a fake.
type Actions interface {
	BuyToken(ctx context.Context, ethAmount string) (*gateway.Receipt, error)
	SellToken(ctx context.Context, dexAmount string) (*gateway.Receipt, error)
	RequestLoan(ctx context.Context, dexAmount string, deadlineMinutes int64) (*gateway.Receipt, error)
	MakePayment(ctx context.Context, loanID uint64, ethAmount string) (*gateway.Receipt, error)
	TerminationQuote(ctx context.Context, loanID uint64) (*big.Int, error)
	TerminateLoan(ctx context.Context, loanID uint64) (*gateway.Receipt, error)
	RequestNftLoan(ctx context.Context, nftContract, tokenID, ethAmount string, deadlineMinutes int64) (*gateway.Receipt, error)
	CancelNftLoanRequest(ctx context.Context, loanID uint64) (*gateway.Receipt, error)
	AcceptNftLoanRequest(ctx context.Context, loanID uint64) (*gateway.Receipt, error)
	MintNft(ctx context.Context, uri string) (*gateway.Receipt, error)
	SetSwapRate(ctx context.Context, rate string) (*gateway.Receipt, error)
}

// Refresher is the sync surface exposed over HTTP: a full refresh and the
// explicit NFT reconcile, which never runs on its own.
type Refresher interface {
	RefreshAll(ctx context.Context, account string) error
	ReconcileNfts(ctx context.Context, account string) error
}

type handlers struct {
	store      *registry.Store
	dispatcher Actions
	engine     Refresher
}

func newHandlers(store *registry.Store, dispatcher Actions, engine Refresher) *handlers {
	return &handlers{store: store, dispatcher: dispatcher, engine: engine}
}

func (h *handlers) mount(mux *chi.Mux) {
	mux.Route("/v1", func(r chi.Router) {
		r.Get("/views/available-nfts", h.availableNfts)
		r.Get("/views/cancellable-loans", h.cancellableLoans)
		r.Get("/views/payable-loans", h.payableLoans)
		r.Get("/views/acceptable-loan-requests", h.acceptableLoanRequests)

		r.Get("/loans", h.listLoans)
		r.Get("/loans/{id}", h.getLoan)
		r.Get("/loans/{id}/termination-quote", h.terminationQuote)
		r.Get("/nfts", h.listNfts)
		r.Get("/balances", h.getBalances)

		r.Post("/actions/buy", h.buy)
		r.Post("/actions/sell", h.sell)
		r.Post("/actions/request-loan", h.requestLoan)
		r.Post("/actions/make-payment", h.makePayment)
		r.Post("/actions/terminate-loan", h.terminateLoan)
		r.Post("/actions/request-nft-loan", h.requestNftLoan)
		r.Post("/actions/cancel-nft-loan", h.cancelNftLoan)
		r.Post("/actions/accept-nft-loan", h.acceptNftLoan)
		r.Post("/actions/mint-nft", h.mintNft)
		r.Post("/actions/set-rate", h.setRate)

		r.Post("/sync/refresh", h.syncRefresh)
		r.Post("/sync/reconcile-nfts", h.syncReconcileNfts)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		Logger.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError maps dispatcher errors to HTTP statuses: rejected input is the
// client's fault, a missing wallet means the node cannot sign, everything
// else is the chain misbehaving.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, actions.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, gateway.ErrNoWallet):
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, models.ErrorResponse{Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "invalid JSON body: " + err.Error()})
		return false
	}
	return true
}

func requireAccount(w http.ResponseWriter, r *http.Request) (string, bool) {
	account := r.URL.Query().Get("account")
	if account == "" {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "account query parameter is required"})
		return "", false
	}
	return account, true
}

func loanIDParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.ErrorResponse{Error: "loan id must be an unsigned integer"})
		return 0, false
	}
	return id, true
}

func (h *handlers) availableNfts(w http.ResponseWriter, r *http.Request) {
	account, ok := requireAccount(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, models.NewNftViews(registry.AvailableNfts(h.store, account)))
}

func (h *handlers) cancellableLoans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.NewLoanViews(registry.CancellableLoans(h.store)))
}

func (h *handlers) payableLoans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.NewLoanViews(registry.PayableLoans(h.store)))
}

func (h *handlers) acceptableLoanRequests(w http.ResponseWriter, r *http.Request) {
	account, ok := requireAccount(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, models.NewLoanViews(registry.AcceptableLoanRequests(h.store, account)))
}

func (h *handlers) listLoans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.NewLoanViews(h.store.Loans()))
}

func (h *handlers) getLoan(w http.ResponseWriter, r *http.Request) {
	id, ok := loanIDParam(w, r)
	if !ok {
		return
	}
	loan, ok := h.store.Loan(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "loan not found"})
		return
	}
	writeJSON(w, http.StatusOK, models.NewLoanView(loan))
}

func (h *handlers) terminationQuote(w http.ResponseWriter, r *http.Request) {
	id, ok := loanIDParam(w, r)
	if !ok {
		return
	}
	quote, err := h.dispatcher.TerminationQuote(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.QuoteResponse{
		LoanId:     id,
		Value:      quote.String(),
		ValueHuman: units.FromSmallestUnit(quote),
	})
}

func (h *handlers) listNfts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.NewNftViews(h.store.Nfts()))
}

func (h *handlers) getBalances(w http.ResponseWriter, r *http.Request) {
	balances, ok := h.store.Balances()
	if !ok {
		writeJSON(w, http.StatusNotFound, models.ErrorResponse{Error: "balances not refreshed yet"})
		return
	}
	writeJSON(w, http.StatusOK, models.NewBalancesView(balances))
}

func (h *handlers) buy(w http.ResponseWriter, r *http.Request) {
	var req models.AmountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respondTx(w, func() (*gateway.Receipt, error) {
		return h.dispatcher.BuyToken(r.Context(), req.Amount)
	})
}

func (h *handlers) sell(w http.ResponseWriter, r *http.Request) {
	var req models.AmountRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respondTx(w, func() (*gateway.Receipt, error) {
		return h.dispatcher.SellToken(r.Context(), req.Amount)
	})
}

func (h *handlers) requestLoan(w http.ResponseWriter, r *http.Request) {
	var req models.LoanRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respondTx(w, func() (*gateway.Receipt, error) {
		return h.dispatcher.RequestLoan(r.Context(), req.Amount, req.DeadlineMinutes)
	})
}

func (h *handlers) makePayment(w http.ResponseWriter, r *http.Request) {
	var req models.PaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respondTx(w, func() (*gateway.Receipt, error) {
		return h.dispatcher.MakePayment(r.Context(), req.LoanId, req.Amount)
	})
}

func (h *handlers) terminateLoan(w http.ResponseWriter, r *http.Request) {
	var req models.LoanIdRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respondTx(w, func() (*gateway.Receipt, error) {
		return h.dispatcher.TerminateLoan(r.Context(), req.LoanId)
	})
}

func (h *handlers) requestNftLoan(w http.ResponseWriter, r *http.Request) {
	var req models.NftLoanRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respondTx(w, func() (*gateway.Receipt, error) {
		return h.dispatcher.RequestNftLoan(r.Context(), req.NftContract, req.TokenId, req.Amount, req.DeadlineMinutes)
	})
}

func (h *handlers) cancelNftLoan(w http.ResponseWriter, r *http.Request) {
	var req models.LoanIdRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respondTx(w, func() (*gateway.Receipt, error) {
		return h.dispatcher.CancelNftLoanRequest(r.Context(), req.LoanId)
	})
}

func (h *handlers) acceptNftLoan(w http.ResponseWriter, r *http.Request) {
	var req models.LoanIdRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respondTx(w, func() (*gateway.Receipt, error) {
		return h.dispatcher.AcceptNftLoanRequest(r.Context(), req.LoanId)
	})
}

func (h *handlers) mintNft(w http.ResponseWriter, r *http.Request) {
	var req models.MintRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respondTx(w, func() (*gateway.Receipt, error) {
		return h.dispatcher.MintNft(r.Context(), req.TokenUri)
	})
}

func (h *handlers) setRate(w http.ResponseWriter, r *http.Request) {
	var req models.RateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	h.respondTx(w, func() (*gateway.Receipt, error) {
		return h.dispatcher.SetSwapRate(r.Context(), req.Rate)
	})
}

func (h *handlers) syncRefresh(w http.ResponseWriter, r *http.Request) {
	account, ok := requireAccount(w, r)
	if !ok {
		return
	}
	if err := h.engine.RefreshAll(r.Context(), account); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}

func (h *handlers) syncReconcileNfts(w http.ResponseWriter, r *http.Request) {
	account, ok := requireAccount(w, r)
	if !ok {
		return
	}
	if err := h.engine.ReconcileNfts(r.Context(), account); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reconciled"})
}

func (h *handlers) respondTx(w http.ResponseWriter, run func() (*gateway.Receipt, error)) {
	receipt, err := run()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.TxResponse{
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
	})
}
