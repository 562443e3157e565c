package modbus

import "os"

// transaction drives a single request/response exchange over an already
// open transport, staged as setRequest/execute/getResponse rather than one
// monolithic call: setRequest stages the outgoing PDU, execute sends it
// (applying the retry policy below), and getResponse hands back whatever
// the last execute produced. On timeout, execute resends the same request
// up to retries additional times before giving up. Each resend is a new
// ExecuteRequest call, so a TCP or UDP transport sends it under a fresh
// transaction id rather than the one the first attempt used. Exception responses are returned to
// the caller as-is, without a retry: a device that understood the request
// well enough to reject it isn't going to change its mind.
type transaction struct {
	transport transport
	retries   uint

	req *pdu
	res *pdu
	err error
}

func newTransaction(t transport, retries uint) *transaction {
	return &transaction{transport: t, retries: retries}
}

// setRequest stages req as the PDU the next execute call will send.
func (tx *transaction) setRequest(req *pdu) {
	tx.req = req
}

// execute sends the staged request, retrying up to tx.retries times on a
// request timeout, and stores the outcome for getResponse.
func (tx *transaction) execute() {
	attempts := tx.retries + 1

	for attempt := uint(0); attempt < attempts; attempt++ {
		tx.res, tx.err = tx.transport.ExecuteRequest(tx.req)

		if tx.err != nil && os.IsTimeout(tx.err) {
			tx.err = ErrRequestTimedOut
		}

		if tx.err != ErrRequestTimedOut {
			return
		}
	}
}

// getResponse returns the result of the most recent execute call.
func (tx *transaction) getResponse() (*pdu, error) {
	return tx.res, tx.err
}
