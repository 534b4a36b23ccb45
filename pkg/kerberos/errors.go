package kerberos

import "errors"

// ErrInvalidCredentials covers a missing principal or a ticket that fails
// MAC verification or decodes to garbage. The caller must not try to
// distinguish these cases from the response it sends a client.
var ErrInvalidCredentials = errors.New("kerberos: invalid credentials")

// ErrExpiredTicket is returned when a ticket's MAC verifies but its
// valid_until has passed.
var ErrExpiredTicket = errors.New("kerberos: ticket expired")
