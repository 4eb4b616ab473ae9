// internal/console/console.go
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"minilibrary/internal/catalog"
	"minilibrary/internal/clients"

	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
)

// Library is the remote catalog the console drives.
type Library interface {
	Login(ctx context.Context, user, pass string) error
	Init(ctx context.Context) error
	List(ctx context.Context) ([]catalog.Book, error)
	Add(ctx context.Context, book catalog.Book) (*catalog.Book, error)
	Find(ctx context.Context, clauses []string) ([]catalog.Book, error)
	Borrow(ctx context.Context, id uuid.UUID) (int, error)
	Return(ctx context.Context, id uuid.UUID) (int, error)
}

const (
	msgAccessDenied   = "Access denied. Try logging in."
	msgUnknownError   = "Unknown error!"
	msgUnknownCommand = `Unknown command. For a list of commands type "help".`
	msgNoSuchBook     = "No book with this GUID exists."
	msgNoUnits        = "The book has no units available."
)

type styles struct {
	ok     lipgloss.Style
	fail   lipgloss.Style
	label  lipgloss.Style
	header lipgloss.Style
}

func newStyles(out io.Writer) styles {
	r := lipgloss.NewRenderer(out)
	return styles{
		ok:     r.NewStyle().Foreground(lipgloss.Color("42")),
		fail:   r.NewStyle().Foreground(lipgloss.Color("203")),
		label:  r.NewStyle().Foreground(lipgloss.Color("110")),
		header: r.NewStyle().Bold(true),
	}
}

// Console is a line-oriented REPL over a Library.
type Console struct {
	lib    Library
	in     *bufio.Scanner
	out    io.Writer
	styles styles
}

func New(lib Library, in io.Reader, out io.Writer) *Console {
	return &Console{
		lib:    lib,
		in:     bufio.NewScanner(in),
		out:    out,
		styles: newStyles(out),
	}
}

// Run reads commands until exit, end of input or ctx is cancelled.
func (c *Console) Run(ctx context.Context) error {
	c.println("")
	c.println(c.styles.header.Render("Welcome to MiniLibrary!"))
	c.println(`For a list of commands type "help".`)

	for {
		if ctx.Err() != nil {
			return nil
		}
		fmt.Fprint(c.out, "> ")
		line, ok := c.readLine()
		if !ok {
			return c.in.Err()
		}

		args, err := splitArgs(line)
		if err != nil {
			c.fail("Invalid parameters! Unterminated quote.")
			continue
		}
		if len(args) == 0 {
			continue
		}

		switch args[0] {
		case "exit":
			return nil
		case "help":
			c.help(args)
		case "login":
			c.login(ctx, args)
		case "init":
			c.initCatalog(ctx)
		case "list":
			c.list(ctx)
		case "add":
			c.add(ctx, args)
		case "find":
			c.find(ctx, args)
		case "borrow":
			c.borrow(ctx, args)
		case "return":
			c.giveBack(ctx, args)
		default:
			c.println(msgUnknownCommand)
		}
	}
}

func (c *Console) readLine() (string, bool) {
	if !c.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(c.in.Text()), true
}

func (c *Console) prompt(label string) (string, bool) {
	fmt.Fprint(c.out, c.styles.label.Render(label+": "))
	return c.readLine()
}

func (c *Console) confirm(question string) bool {
	c.println(question + " Y/N")
	answer, ok := c.readLine()
	return ok && strings.EqualFold(answer, "y")
}

func (c *Console) println(s string) {
	fmt.Fprintln(c.out, s)
}

func (c *Console) success(s string) {
	c.println(c.styles.ok.Render(s))
}

func (c *Console) fail(s string) {
	c.println(c.styles.fail.Render(s))
}

// report prints the message for a failed call. help names the command whose
// help text explains valid parameters.
func (c *Console) report(err error, help string) {
	switch {
	case errors.Is(err, clients.ErrUnauthorized):
		c.fail(msgAccessDenied)
	case errors.Is(err, clients.ErrBadRequest) && help != "":
		c.fail(fmt.Sprintf(`Invalid parameters! For help type "help %s".`, help))
	case errors.Is(err, clients.ErrNotFound):
		c.fail(msgNoSuchBook)
	case errors.Is(err, clients.ErrNoUnits):
		c.fail(msgNoUnits)
	default:
		c.fail(msgUnknownError)
	}
}

func (c *Console) login(ctx context.Context, args []string) {
	if len(args) != 3 {
		c.println(`Invalid number of parameters. For help type "help login".`)
		return
	}
	if err := c.lib.Login(ctx, unquote(args[1]), unquote(args[2])); err != nil {
		if errors.Is(err, clients.ErrUnauthorized) || errors.Is(err, clients.ErrBadRequest) {
			c.fail("Invalid credentials!")
			return
		}
		c.report(err, "")
		return
	}
	c.success("Login successful!")
}

func (c *Console) initCatalog(ctx context.Context) {
	if !c.confirm("WARNING: All existing data will be overwritten. Proceed?") {
		return
	}
	if err := c.lib.Init(ctx); err != nil {
		c.report(err, "")
		return
	}
	c.success("Init OK!")
}

func (c *Console) list(ctx context.Context) {
	books, err := c.lib.List(ctx)
	if err != nil {
		c.report(err, "")
		return
	}
	c.writeBooks(books)
}

func (c *Console) find(ctx context.Context, args []string) {
	if len(args) == 1 {
		c.println("No filters specified.")
		return
	}
	books, err := c.lib.Find(ctx, args[1:])
	if err != nil {
		c.report(err, "find")
		return
	}
	c.writeBooks(books)
}

func (c *Console) add(ctx context.Context, args []string) {
	var book catalog.Book
	if len(args) == 1 {
		var ok bool
		book, ok = c.promptBook()
		if !ok {
			return
		}
	} else {
		if len(args) != 6 {
			c.println(`Invalid number of parameters! For help type "help add".`)
			return
		}
		year, yearErr := strconv.Atoi(unquote(args[3]))
		amount, amountErr := strconv.Atoi(unquote(args[5]))
		if yearErr != nil || amountErr != nil {
			c.println(`Invalid parameter value! For help type "help add".`)
			return
		}
		book = catalog.Book{
			Name:   unquote(args[1]),
			Author: unquote(args[2]),
			Year:   year,
			ISBN:   unquote(args[4]),
			Amount: amount,
		}
	}

	created, err := c.lib.Add(ctx, book)
	if err != nil {
		c.report(err, "add")
		return
	}
	c.success("Book added! GUID: " + created.ID.String())
}

// promptBook asks for each field in turn. A blank answer abandons the add.
func (c *Console) promptBook() (catalog.Book, bool) {
	var book catalog.Book
	c.println("All fields are required. Enter blank value to quit.")

	var ok bool
	if book.Name, ok = c.promptText("Name"); !ok {
		return book, false
	}
	if book.Author, ok = c.promptText("Author"); !ok {
		return book, false
	}
	if book.Year, ok = c.promptInt("Year published"); !ok {
		return book, false
	}
	if book.ISBN, ok = c.promptText("ISBN"); !ok {
		return book, false
	}
	if book.Amount, ok = c.promptInt("Units available"); !ok {
		return book, false
	}
	return book, c.confirm("Adding book. Proceed?")
}

func (c *Console) promptText(label string) (string, bool) {
	v, ok := c.prompt(label)
	return v, ok && v != ""
}

func (c *Console) promptInt(label string) (int, bool) {
	for {
		v, ok := c.prompt(label)
		if !ok || v == "" {
			return 0, false
		}
		if n, err := strconv.Atoi(v); err == nil {
			return n, true
		}
		c.println("Invalid entry, try again.")
	}
}

func (c *Console) parseID(args []string) (uuid.UUID, bool) {
	if len(args) == 1 {
		c.println("No GUID specified.")
		return uuid.Nil, false
	}
	id, err := uuid.Parse(args[1])
	if err != nil {
		c.println("Invalid GUID.")
		return uuid.Nil, false
	}
	return id, true
}

func (c *Console) borrow(ctx context.Context, args []string) {
	id, ok := c.parseID(args)
	if !ok {
		return
	}
	left, err := c.lib.Borrow(ctx, id)
	if err != nil {
		c.report(err, "")
		return
	}
	c.success(fmt.Sprintf("Book borrowed successfully! Units remaining: %d", left))
}

func (c *Console) giveBack(ctx context.Context, args []string) {
	id, ok := c.parseID(args)
	if !ok {
		return
	}
	available, err := c.lib.Return(ctx, id)
	if err != nil {
		c.report(err, "")
		return
	}
	c.success(fmt.Sprintf("Book returned successfully! Units remaining: %d", available))
}

func (c *Console) writeBooks(books []catalog.Book) {
	c.println("")
	c.println(c.styles.header.Render(fmt.Sprintf("Found %d book(s)", len(books))))
	c.println("")
	for _, b := range books {
		c.field("GUID", b.ID.String())
		c.field("Name", b.Name)
		c.field("Author", b.Author)
		c.field("Published", strconv.Itoa(b.Year))
		c.field("ISBN", b.ISBN)
		c.field("Available", fmt.Sprintf("%d units", b.Amount))
		c.println("")
	}
}

func (c *Console) field(label, value string) {
	c.println(c.styles.label.Render(label+":") + " " + value)
}
