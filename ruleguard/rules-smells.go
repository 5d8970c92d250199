package gorules

import "github.com/quasilyte/go-ruleguard/dsl"

func smells(m dsl.Matcher) {
	// Two consecutive guards with the same return can be merged with ||
	m.Match(`if $c1 { return $ret }; if $c2 { return $ret }`).
		Report(`two consecutive guards return the same value; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { return $ret }`)

	m.Match(`if $c1 { continue }; if $c2 { continue }`).
		Report(`two consecutive continues; consider merging conditions with ||`).
		Suggest(`if $c1 || $c2 { continue }`)

	// pixel loops are expected in the vision package
	m.Match(`for $*_ { for $*_ { $*_ } }`).
		Where(!m.File().PkgPath.Matches(`internal/domain/vision$`)).
		Report(`nested for-loop; consider extracting inner loop logic or reducing algorithmic complexity`)
}

func errorStyle(m dsl.Matcher) {
	m.Match(`errors.New(fmt.Sprintf($*args))`).
		Report(`use fmt.Errorf instead of errors.New(fmt.Sprintf(...))`).
		Suggest(`fmt.Errorf($args)`)

	m.Match(`fmt.Errorf($f, $*_, $err)`).
		Where(m["err"].Type.Implements("error") && !m["f"].Text.Matches(`%w`)).
		Report(`wrap errors with %w so callers can use errors.Is/As`)
}

func logging(m dsl.Matcher) {
	// output goes through zap outside cmd/ (which writes to its io.Writer)
	m.Match(`fmt.Println($*_)`, `fmt.Printf($*_)`, `log.Printf($*_)`, `log.Println($*_)`).
		Where(!m.File().Name.Matches(`_test\.go$`) && !m.File().PkgPath.Matches(`/cmd/`)).
		Report(`use the injected *zap.Logger instead of printing`)
}

func pacing(m dsl.Matcher) {
	// capture pacing must honour cancellation; sleep through a ctx-aware select
	m.Match(`time.Sleep($_)`).
		Where(m.File().PkgPath.Matches(`internal/domain/`) && !m.File().Name.Matches(`_test\.go$`)).
		Report(`time.Sleep ignores context cancellation; select on ctx.Done() and a timer`)
}
