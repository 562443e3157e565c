package modbus

import (
	"os"
	"testing"
)

// fakeTransport is a scripted transport stand-in: each call to
// ExecuteRequest pops the next (response, error) pair off the script.
type fakeTransport struct {
	script []fakeExchange
	calls  int
}

type fakeExchange struct {
	res *pdu
	err error
}

func (ft *fakeTransport) ExecuteRequest(*pdu) (*pdu, error) {
	x := ft.script[ft.calls]
	ft.calls++

	return x.res, x.err
}

func (ft *fakeTransport) ReadRequest() (*pdu, error)   { return nil, nil }
func (ft *fakeTransport) WriteResponse(*pdu) error     { return nil }
func (ft *fakeTransport) Close() error                 { return nil }

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestTransactionExecuteSuccess(t *testing.T) {
	var tx *transaction
	var res *pdu
	var err error

	ft := &fakeTransport{script: []fakeExchange{
		{res: &pdu{unitID: 1, functionCode: 3}},
	}}

	tx = newTransaction(ft, 2)
	tx.setRequest(&pdu{unitID: 1, functionCode: 3})
	tx.execute()
	res, err = tx.getResponse()
	if err != nil {
		t.Errorf("execute() should have succeeded, got: %v", err)
	}
	if res.unitID != 1 || res.functionCode != 3 {
		t.Errorf("unexpected response: %+v", res)
	}
	if ft.calls != 1 {
		t.Errorf("expected 1 call, got %v", ft.calls)
	}

	return
}

func TestTransactionExecuteRetriesOnTimeout(t *testing.T) {
	var tx *transaction
	var res *pdu
	var err error

	ft := &fakeTransport{script: []fakeExchange{
		{err: timeoutError{}},
		{err: timeoutError{}},
		{res: &pdu{unitID: 1, functionCode: 3}},
	}}

	tx = newTransaction(ft, 2)
	tx.setRequest(&pdu{unitID: 1, functionCode: 3})
	tx.execute()
	res, err = tx.getResponse()
	if err != nil {
		t.Errorf("execute() should have succeeded after retries, got: %v", err)
	}
	if res == nil || res.unitID != 1 {
		t.Errorf("unexpected response: %+v", res)
	}
	if ft.calls != 3 {
		t.Errorf("expected 3 calls (1 + 2 retries), got %v", ft.calls)
	}

	return
}

func TestTransactionExecuteExhaustsRetries(t *testing.T) {
	var tx *transaction
	var err error

	ft := &fakeTransport{script: []fakeExchange{
		{err: timeoutError{}},
		{err: timeoutError{}},
	}}

	tx = newTransaction(ft, 1)
	tx.setRequest(&pdu{unitID: 1, functionCode: 3})
	tx.execute()
	_, err = tx.getResponse()
	if err != ErrRequestTimedOut {
		t.Errorf("expected ErrRequestTimedOut, got: %v", err)
	}
	if ft.calls != 2 {
		t.Errorf("expected 2 calls (1 + 1 retry), got %v", ft.calls)
	}
	if !os.IsTimeout(timeoutError{}) {
		t.Errorf("sanity check: timeoutError should satisfy os.IsTimeout")
	}

	return
}

func TestTransactionExecuteDoesNotRetryOnNonTimeoutError(t *testing.T) {
	var tx *transaction
	var err error

	ft := &fakeTransport{script: []fakeExchange{
		{err: ErrIllegalFunction},
		{err: timeoutError{}},
	}}

	tx = newTransaction(ft, 3)
	tx.setRequest(&pdu{unitID: 1, functionCode: 3})
	tx.execute()
	_, err = tx.getResponse()
	if err != ErrIllegalFunction {
		t.Errorf("expected ErrIllegalFunction, got: %v", err)
	}
	if ft.calls != 1 {
		t.Errorf("expected a non-timeout error to stop retries immediately, got %v calls", ft.calls)
	}

	return
}
