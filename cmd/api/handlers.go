package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/mcclellann/fundLedger/pkg/ledger"
	"github.com/mcclellann/fundLedger/pkg/models"
	"github.com/mcclellann/fundLedger/pkg/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// writeError maps ledger and store errors to HTTP responses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ledger.ErrNoChange):
		writeJSON(w, http.StatusOK, map[string]string{"status": "no_change"})
	case ledger.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "validation"})
	case ledger.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Kind: "not_found"})
	case errors.Is(err, store.ErrConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Kind: "conflict"})
	default:
		s.logger.Error("request failed",
			zap.String("op", "http"),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Kind: "internal"})
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Kind: "validation"})
}

func dueNoVar(r *http.Request) (int, bool) {
	n, err := strconv.Atoi(mux.Vars(r)["due_no"])
	return n, err == nil
}

func (s *Server) listAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.ledger.GetAllAccounts()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if accounts == nil {
		accounts = []*models.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) createAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name   string `json:"name"`
		Mobile string `json:"mobile"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}

	acct, err := s.ledger.CreateAccount(req.Name, req.Mobile)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (s *Server) getAccountHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := s.ledger.Summary(mux.Vars(r)["account"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) renameAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}
	acct, err := s.ledger.RenameAccount(mux.Vars(r)["account"], req.Name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) updateMobileHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mobile string `json:"mobile"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}
	acct, err := s.ledger.UpdateMobile(mux.Vars(r)["account"], req.Mobile)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) collectPaymentHandler(w http.ResponseWriter, r *http.Request) {
	dueNo, ok := dueNoVar(r)
	if !ok {
		badRequest(w, "Invalid due number")
		return
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Method string          `json:"method"`
		Notes  string          `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}

	acct, err := s.ledger.CollectPayment(mux.Vars(r)["account"], ledger.CollectRequest{
		DueNo:  dueNo,
		Amount: req.Amount,
		Method: req.Method,
		Notes:  req.Notes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (s *Server) updateDueHandler(w http.ResponseWriter, r *http.Request) {
	dueNo, ok := dueNoVar(r)
	if !ok {
		badRequest(w, "Invalid due number")
		return
	}

	var req struct {
		DueAmount    decimal.Decimal `json:"due_amount"`
		LoanInterest decimal.Decimal `json:"loan_interest"`
		ApplyToAll   bool            `json:"apply_to_all"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}

	acct, err := s.ledger.UpdateDue(mux.Vars(r)["account"], ledger.DueUpdate{
		DueNo:        dueNo,
		DueAmount:    req.DueAmount,
		LoanInterest: req.LoanInterest,
		ApplyToAll:   req.ApplyToAll,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) importDuePaymentsHandler(w http.ResponseWriter, r *http.Request) {
	installments, err := ledger.DecodeDuePaymentsImport(r.Body, s.ledger.ImportRules())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	acct, discrepancies, err := s.ledger.ImportDuePayments(mux.Vars(r)["account"], installments)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if discrepancies == nil {
		discrepancies = []ledger.Discrepancy{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"account":       acct,
		"discrepancies": discrepancies,
	})
}

func (s *Server) changeLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LoanAmount *decimal.Decimal `json:"loan_amount"`
		UpdatedBy  string           `json:"updated_by"`
		Reason     string           `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}
	if req.LoanAmount == nil {
		badRequest(w, "loan_amount is required")
		return
	}

	acct, err := s.ledger.ChangeLoanPrincipal(mux.Vars(r)["account"], ledger.LoanChange{
		NewLoanAmount: *req.LoanAmount,
		UpdatedBy:     req.UpdatedBy,
		Reason:        req.Reason,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, acct)
}

func (s *Server) repayLoanHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Date   models.DueDate  `json:"date"`
		Notes  string          `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}

	acct, err := s.ledger.RepayLoan(mux.Vars(r)["account"], ledger.Repayment{
		Amount: req.Amount,
		Date:   req.Date,
		Notes:  req.Notes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, acct)
}

func (s *Server) transactionsHandler(w http.ResponseWriter, r *http.Request) {
	txs, err := s.ledger.GetTransactions(mux.Vars(r)["account"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if txs == nil {
		txs = []*models.Transaction{}
	}
	writeJSON(w, http.StatusOK, txs)
}

func (s *Server) importAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := ledger.DecodeAccountsImport(r.Body, s.ledger.ImportRules())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.ledger.ImportAccounts(accounts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) bulkFundHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Updates []ledger.FundUpdate `json:"updates"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err.Error())
		return
	}

	results, err := s.ledger.BulkUpdateFund(req.Updates)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *Server) dueReportHandler(w http.ResponseWriter, r *http.Request) {
	dueNo, ok := dueNoVar(r)
	if !ok {
		badRequest(w, "Invalid due number")
		return
	}
	report, err := s.ledger.DueReport(dueNo)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	dashboard, err := s.ledger.Dashboard()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboard)
}
