package sulpher

import "github.com/ha1tch/rserv/internal/apierr"

// syntaxErr builds a QuerySyntaxError carrying the offending token and its
// column.
func syntaxErr(tok Token, format string, args ...any) *apierr.Error {
	e := apierr.Newf(apierr.KindQuerySyntax, format, args...)
	return e.WithToken(tok.Text, tok.Column)
}

// runtimeErr builds a QueryRuntimeError for failures during execution that
// are not a parse problem (e.g. an unbound variable reached at projection
// time).
func runtimeErr(format string, args ...any) *apierr.Error {
	return apierr.Newf(apierr.KindQueryRuntime, format, args...)
}

// validationErr builds a ValidationError for an invalid aggregation
// argument (e.g. SUM/AVG over a non-numeric property), matching the
// non-numeric case NeighborhoodAggregate reports in internal/algo.
func validationErr(format string, args ...any) *apierr.Error {
	return apierr.Newf(apierr.KindValidation, format, args...)
}
