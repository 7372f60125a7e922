package orchestrator

import (
	"strings"

	"github.com/louisbranch/questmaster/internal/core/dice"
)

// CommandKind enumerates the player-facing commands the orchestrator
// understands. Anything that is not a command is a free-text action.
type CommandKind int

const (
	CommandAction CommandKind = iota
	CommandStart
	CommandRoll
	CommandStatus
	CommandCreateCharacter
	CommandInventory
	CommandAttack
	CommandRest
	CommandPause
	CommandResume
	CommandEnd
	CommandHelp
)

// Command is a parsed inbound message. Fields beyond Kind are populated
// only where the command carries arguments.
type Command struct {
	Kind CommandKind
	// Expression is the dice expression for a roll command.
	Expression string
	// Mode selects advantage or disadvantage for a roll command.
	Mode dice.Mode
	// Name is the character name for a create-character command.
	Name string
	// Auto requests rolled ability scores for a create-character command.
	Auto bool
	// Target is the attack target.
	Target string
	// Text is the original message, kept for free-text actions.
	Text string
}

// ParseCommand tokenizes an inbound message. Commands start with a slash;
// both English and Portuguese aliases are accepted. Parsing is
// intentionally a plain tokenizer, not a grammar.
func ParseCommand(text string) Command {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "/") {
		return Command{Kind: CommandAction, Text: trimmed}
	}

	fields := strings.Fields(trimmed)
	verb := strings.ToLower(fields[0])
	args := fields[1:]

	switch verb {
	case "/start", "/iniciar":
		return Command{Kind: CommandStart, Text: trimmed}
	case "/roll", "/rolar":
		expression := ""
		mode := dice.ModeNormal
		for _, arg := range args {
			switch strings.ToLower(arg) {
			case "adv", "advantage", "vantagem":
				mode = dice.ModeAdvantage
			case "dis", "disadvantage", "desvantagem":
				mode = dice.ModeDisadvantage
			default:
				if expression == "" {
					expression = strings.ToLower(arg)
				}
			}
		}
		if expression == "" {
			expression = "1d20"
		}
		return Command{Kind: CommandRoll, Expression: expression, Mode: mode, Text: trimmed}
	case "/status":
		return Command{Kind: CommandStatus, Text: trimmed}
	case "/create-character", "/criar-personagem":
		name := ""
		auto := false
		for _, arg := range args {
			if strings.EqualFold(arg, "auto") {
				auto = true
				continue
			}
			if name == "" {
				name = arg
			} else {
				name += " " + arg
			}
		}
		return Command{Kind: CommandCreateCharacter, Name: name, Auto: auto, Text: trimmed}
	case "/inventory", "/inventario", "/inventário":
		return Command{Kind: CommandInventory, Text: trimmed}
	case "/attack", "/ataque":
		return Command{Kind: CommandAttack, Target: strings.Join(args, " "), Text: trimmed}
	case "/rest", "/descanso":
		return Command{Kind: CommandRest, Text: trimmed}
	case "/pause", "/pausar":
		return Command{Kind: CommandPause, Text: trimmed}
	case "/resume", "/retomar":
		return Command{Kind: CommandResume, Text: trimmed}
	case "/end", "/encerrar":
		return Command{Kind: CommandEnd, Text: trimmed}
	case "/help", "/ajuda":
		return Command{Kind: CommandHelp, Text: trimmed}
	default:
		// Unknown slash commands read as free text so the game master can
		// respond in character.
		return Command{Kind: CommandAction, Text: trimmed}
	}
}

// helpText lists the available commands for players.
const helpText = `Commands:
/start - begin the adventure
/roll <dice> - roll dice, e.g. /roll 2d6+3 (alias /rolar)
/create-character <name> [auto] - create a character (alias /criar-personagem)
/status - show your character sheet
/inventory - show your inventory (alias /inventario)
/attack <target> - attack a target (alias /ataque)
/rest - take a long rest (alias /descanso)
/pause - pause the session
/resume - resume a paused session
/end - end and archive the session
/help - this message
Anything else is treated as an action or dialogue.`
