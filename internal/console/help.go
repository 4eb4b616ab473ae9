// internal/console/help.go
package console

const commandList = `Available commands:

help
login
init
list
add
find
borrow
return
exit

For more info on a command, type "help <command>".`

var commandHelp = map[string]string{
	"exit": `
exit
    - exit
`,
	"help": `
help
    - list available commands
help <command>
    - display more info about a command
`,
	"login": `
login <user> <pass>
    - logs into the system with the specified credentials
`,
	"init": `
init
    - initializes db with testing books
`,
	"list": `
list
    - return a list of all books
`,
	"add": `
add
    - add new book interactively
add <name> <author> <year> <ISBN> <units-available>
    - add new book with given attributes
    - values containing spaces must be enclosed in "double quotes"
`,
	"find": `
find <query1> <query2> ...
    - look up books matching ALL given queries
    - a <query> must look as follows: <parameter>:<value>
    - <parameter> is one of: name auth year isbn
    - <value> is a string enclosed in "double quotes" (for name, auth, isbn) or a range (for year)
    - a range consists of an optional starting year and/or ending year, separated by a dash (-)
    - examples of valid ranges: 2000, 1999-2002, 2020-, -1950
`,
	"borrow": `
borrow <GUID>
    - borrow the book with given GUID (decrements units available by 1)
`,
	"return": `
return <GUID>
    - return the book with given GUID (increments units available by 1)
`,
}

func (c *Console) help(args []string) {
	if len(args) == 1 {
		c.println(commandList)
		return
	}
	text, ok := commandHelp[args[1]]
	if !ok {
		c.println(msgUnknownCommand)
		return
	}
	c.println(text)
}
